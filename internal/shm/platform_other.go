//go:build !linux

package shm

func CreateAnonymous(name string, size int64) (int, error) {
	return -1, ErrUnsupported
}

func FdSize(fd int) (int64, error) {
	return 0, ErrUnsupported
}

func CloseFd(fd int) error {
	return ErrUnsupported
}

func MapRegion(opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

func UnmapRegion(region *MappedRegion) error {
	return ErrUnsupported
}
