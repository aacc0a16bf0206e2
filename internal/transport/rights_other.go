//go:build !linux

package transport

import "errors"

var errNoRights = errors.New("transport: descriptor passing is not supported on this platform")

var RightsSpace = 0

func PackRights(fds ...int) []byte { return nil }

func UnpackRights(oob []byte) ([]int, error) { return nil, errNoRights }

func CloseAll(fds []int) {}

func ControlTruncated(flags int) bool { return false }
