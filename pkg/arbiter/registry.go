/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package arbiter

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	ishm "github.com/srediag/shm-arbiter/internal/shm"
)

var (
	ErrNotFound    = errors.New("arbiter: segment not found")
	ErrExists      = errors.New("arbiter: segment already exists")
	ErrInvalidSize = errors.New("arbiter: invalid segment size")
)

// Segment is a registry entry. Fd is owned by the registry until Remove.
type Segment struct {
	Name    string
	Fd      int
	Size    int64
	Created time.Time
}

// Registry maps segment names to memfd descriptors.
//
// Only the arbiter loop mutates a Registry. Reads (Len, Names, Bytes, Lookup)
// are safe from any goroutine.
type Registry struct {
	segments cmap.ConcurrentMap[string, *Segment]
	bytes    atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{segments: cmap.New[*Segment]()}
}

// Create allocates a memfd of size bytes and registers it under name. An
// existing name is rejected and left untouched.
func (r *Registry) Create(name string, size uint64, memfdName string) (*Segment, error) {
	if size == 0 || size > math.MaxInt64 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if r.segments.Has(name) {
		return nil, ErrExists
	}
	fd, err := ishm.CreateAnonymous(memfdName, int64(size))
	if err != nil {
		return nil, err
	}
	seg := &Segment{Name: name, Fd: fd, Size: int64(size), Created: time.Now()}
	if !r.segments.SetIfAbsent(name, seg) {
		_ = ishm.CloseFd(fd)
		return nil, ErrExists
	}
	r.bytes.Add(seg.Size)
	return seg, nil
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (*Segment, error) {
	seg, ok := r.segments.Get(name)
	if !ok {
		return nil, ErrNotFound
	}
	return seg, nil
}

// Remove erases name and closes its descriptor. Clients holding their own copy
// of the descriptor keep the memory alive.
func (r *Registry) Remove(name string) error {
	seg, ok := r.segments.Pop(name)
	if !ok {
		return ErrNotFound
	}
	r.bytes.Add(-seg.Size)
	return ishm.CloseFd(seg.Fd)
}

func (r *Registry) Len() int {
	return r.segments.Count()
}

// Bytes is the total size of all registered segments.
func (r *Registry) Bytes() int64 {
	return r.bytes.Load()
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := r.segments.Keys()
	sort.Strings(names)
	return names
}

// CloseAll removes every entry and closes every descriptor.
func (r *Registry) CloseAll() error {
	var errs []error
	for _, name := range r.segments.Keys() {
		if err := r.Remove(name); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, fmt.Errorf("release %q: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
