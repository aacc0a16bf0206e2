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

package protocol

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLayout(t *testing.T) {
	req := NewRequest(ModeCreate, "buf", 1024)
	b, err := req.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, RequestSize)
	assert.Equal(t, 96, RequestSize)

	assert.Equal(t, byte(ModeCreate), b[0])
	assert.Equal(t, "buf", string(b[1:4]))
	assert.Equal(t, make([]byte, 88-4), b[4:88], "name tail and padding are zero")
	assert.Equal(t, uint64(1024), binary.NativeEndian.Uint64(b[88:]))
}

func TestRequestDecode(t *testing.T) {
	in := NewRequest(ModeRemove, "segment-a", 0)
	b := in.AppendBinary([]byte("prefix"))
	var out Request
	require.NoError(t, out.UnmarshalBinary(b[len("prefix"):]))
	assert.Equal(t, in, out)
	assert.Equal(t, "segment-a", out.Name.String())
	assert.Equal(t, `remove "segment-a"`, out.String())
}

func TestRequestShortRead(t *testing.T) {
	var r Request
	for _, n := range []int{0, 1, RequestSize - 1, RequestSize + 1} {
		err := r.UnmarshalBinary(make([]byte, n))
		assert.ErrorIs(t, err, ErrShortRequest, "length %d", n)
	}
}

func TestRequestUnknownMode(t *testing.T) {
	b := make([]byte, RequestSize)
	b[0] = 7
	var r Request
	assert.ErrorIs(t, r.UnmarshalBinary(b), ErrUnknownMode)
	assert.Equal(t, "mode(7)", Mode(7).String())
}

func TestNameTruncation(t *testing.T) {
	long := strings.Repeat("x", 200)
	n1 := EncodeName(long)
	n2 := EncodeName(long)
	assert.Equal(t, n1, n2)
	assert.Len(t, n1.String(), MaxNameLen)
	assert.Equal(t, byte(0), n1[MaxNameLen])

	// a name that differs only past the capacity resolves to the same key
	assert.Equal(t, n1, EncodeName(long[:MaxNameLen]+"y"))
}

func TestDecodeForcesTerminator(t *testing.T) {
	b := make([]byte, RequestSize)
	b[0] = byte(ModeGet)
	for i := 1; i <= NameCapacity; i++ {
		b[i] = 'z'
	}
	var r Request
	require.NoError(t, r.UnmarshalBinary(b))
	assert.Equal(t, strings.Repeat("z", MaxNameLen), r.Name.String())
}

func TestNameKeyKeepsEmbeddedNul(t *testing.T) {
	plain := EncodeName("a")
	embedded := EncodeName("a\x00b")
	assert.Equal(t, "a", plain.String())
	assert.Equal(t, "a", embedded.String())
	assert.Equal(t, "a", plain.Key())
	assert.Equal(t, "a\x00b", embedded.Key())
	assert.NotEqual(t, plain.Key(), embedded.Key())
	assert.Equal(t, "", EncodeName("").Key())

	full := EncodeName(strings.Repeat("k", 200))
	assert.Equal(t, strings.Repeat("k", MaxNameLen), full.Key())
	assert.Equal(t, `get "a\x00b"`, NewRequest(ModeGet, "a\x00b", 0).String())
}

func TestStatus(t *testing.T) {
	b := AppendStatus(nil, -1)
	require.Len(t, b, StatusSize)
	s, err := ParseStatus(b)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), s)

	_, err = ParseStatus(b[:2])
	assert.ErrorIs(t, err, ErrShortStatus)
}
