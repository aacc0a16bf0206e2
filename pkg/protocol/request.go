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

// Package protocol defines the fixed-layout request record exchanged between
// clients and the arbiter, and the status reply encoding.
//
// The record is sent verbatim in host byte order and mirrors the C layout
//
//	struct request { uint8_t mode; char name[80]; size_t size; };
//
// on a 64-bit host, so peers built from other languages on the same machine
// interoperate. It is a private protocol, not a versioned format.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Mode selects the operation carried by a Request.
type Mode uint8

const (
	ModeCreate Mode = iota
	ModeGet
	ModeRemove
	ModeQuit
)

func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeGet:
		return "get"
	case ModeRemove:
		return "remove"
	case ModeQuit:
		return "quit"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m <= ModeQuit
}

const (
	// NameCapacity is the size of the name buffer, terminator included.
	NameCapacity = 80
	// MaxNameLen is the longest name that survives encoding.
	MaxNameLen = NameCapacity - 1

	modeOffset = 0
	nameOffset = modeOffset + 1
	sizeOffset = 88

	// RequestSize is the exact number of bytes a receiver must read.
	RequestSize = sizeOffset + 8

	// StatusSize is the byte length of a status reply.
	StatusSize = 4

	StatusOK int32 = 0
)

var (
	ErrShortRequest = errors.New("protocol: request length mismatch")
	ErrUnknownMode  = errors.New("protocol: unknown request mode")
	ErrShortStatus  = errors.New("protocol: status length mismatch")
)

// Name is the fixed-capacity, NUL-terminated name buffer.
type Name [NameCapacity]byte

// EncodeName copies at most MaxNameLen bytes of s into a Name. Longer names are
// truncated, so the same literal string always maps to the same Name.
func EncodeName(s string) Name {
	var n Name
	copy(n[:MaxNameLen], s)
	return n
}

// String returns the name up to its first NUL.
func (n Name) String() string {
	if i := bytes.IndexByte(n[:], 0); i >= 0 {
		return string(n[:i])
	}
	return string(n[:])
}

// Key returns the whole buffer without its trailing NULs. Unlike String it
// keeps bytes after an embedded NUL, so "a\x00b" and "a" stay distinct keys.
func (n Name) Key() string {
	return string(bytes.TrimRight(n[:], "\x00"))
}

// Request is the only message a client sends.
type Request struct {
	Mode Mode
	Name Name
	// Size is only meaningful for ModeCreate.
	Size uint64
}

// NewRequest builds a request, truncating name as EncodeName does.
func NewRequest(mode Mode, name string, size uint64) Request {
	return Request{Mode: mode, Name: EncodeName(name), Size: size}
}

// AppendBinary appends the RequestSize-byte encoding of r to b.
func (r *Request) AppendBinary(b []byte) []byte {
	var raw [RequestSize]byte
	raw[modeOffset] = byte(r.Mode)
	copy(raw[nameOffset:nameOffset+NameCapacity], r.Name[:])
	binary.NativeEndian.PutUint64(raw[sizeOffset:], r.Size)
	return append(b, raw[:]...)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *Request) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, RequestSize)), nil
}

// UnmarshalBinary decodes exactly RequestSize bytes.
func (r *Request) UnmarshalBinary(b []byte) error {
	if len(b) != RequestSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrShortRequest, len(b), RequestSize)
	}
	mode := Mode(b[modeOffset])
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, uint8(mode))
	}
	r.Mode = mode
	copy(r.Name[:], b[nameOffset:nameOffset+NameCapacity])
	// the terminator is required even if the sender filled the buffer
	r.Name[MaxNameLen] = 0
	r.Size = binary.NativeEndian.Uint64(b[sizeOffset:])
	return nil
}

func (r Request) String() string {
	if r.Mode == ModeCreate {
		return fmt.Sprintf("%s %q size=%d", r.Mode, r.Name.Key(), r.Size)
	}
	return fmt.Sprintf("%s %q", r.Mode, r.Name.Key())
}

// AppendStatus appends a status reply to b.
func AppendStatus(b []byte, status int32) []byte {
	return binary.NativeEndian.AppendUint32(b, uint32(status))
}

// ParseStatus decodes a status reply.
func ParseStatus(b []byte) (int32, error) {
	if len(b) != StatusSize {
		return 0, fmt.Errorf("%w: got %d bytes", ErrShortStatus, len(b))
	}
	return int32(binary.NativeEndian.Uint32(b)), nil
}
