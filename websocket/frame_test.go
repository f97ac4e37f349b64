// Copyright 2025 The Rush Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package websocket

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clientFrame encodes a masked client-side frame, the way a browser would
// put it on the wire.
func clientFrame(opcode byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0x80 | opcode)

	maskKey := [4]byte{0x12, 0x34, 0x56, 0x78}
	n := len(payload)
	switch {
	case n < 126:
		buf.WriteByte(0x80 | byte(n))
	case n < 1<<16:
		buf.WriteByte(0x80 | 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		buf.Write(ext[:])
	default:
		buf.WriteByte(0x80 | 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		buf.Write(ext[:])
	}

	buf.Write(maskKey[:])
	masked := make([]byte, n)
	for i, b := range payload {
		masked[i] = b ^ maskKey[i&3]
	}
	buf.Write(masked)
	return buf.Bytes()
}

func TestAcceptKey(t *testing.T) {
	// The RFC 6455 §1.3 worked example.
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=",
		AcceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestReadFrameUnmasksPayload(t *testing.T) {
	raw := clientFrame(opText, []byte("hello"))

	f, err := readFrame(bytes.NewReader(raw), 1<<20)
	require.NoError(t, err)
	assert.Equal(t, opText, f.opcode)
	assert.Equal(t, []byte("hello"), f.payload)
}

func TestReadFrameLengthEncodings(t *testing.T) {
	sizes := []int{0, 125, 126, 4096, 65535, 65536, 70000}
	for _, size := range sizes {
		payload := bytes.Repeat([]byte{0xAB}, size)
		raw := clientFrame(opBinary, payload)

		f, err := readFrame(bytes.NewReader(raw), 1<<20)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, payload, f.payload, "size %d", size)
	}
}

func TestReadFrameRejectsUnmasked(t *testing.T) {
	// Hand-build an unmasked text frame.
	raw := []byte{0x80 | opText, 0x02, 'h', 'i'}

	_, err := readFrame(bytes.NewReader(raw), 1<<20)
	assert.ErrorIs(t, err, errUnmaskedFrame)
}

func TestReadFrameEnforcesSizeLimit(t *testing.T) {
	raw := clientFrame(opText, bytes.Repeat([]byte{'x'}, 200))

	_, err := readFrame(bytes.NewReader(raw), 100)
	assert.ErrorIs(t, err, errMessageTooLarge)
}

func TestReadFrameRejectsFragmentation(t *testing.T) {
	// Text frame without FIN.
	raw := clientFrame(opText, []byte("part"))
	raw[0] &^= 0x80

	_, err := readFrame(bytes.NewReader(raw), 1<<20)
	assert.ErrorIs(t, err, errFragmented)

	_, err = readFrame(bytes.NewReader(clientFrame(opContinuation, nil)), 1<<20)
	assert.ErrorIs(t, err, errFragmented)
}

func TestReadFrameRejectsReservedBits(t *testing.T) {
	raw := clientFrame(opText, []byte("x"))
	raw[0] |= 0x40 // RSV1 without a negotiated extension

	_, err := readFrame(bytes.NewReader(raw), 1<<20)
	assert.ErrorIs(t, err, errReservedBits)
}

func TestReadFrameRejectsOversizedControlFrame(t *testing.T) {
	raw := clientFrame(opPing, bytes.Repeat([]byte{'p'}, 126))

	_, err := readFrame(bytes.NewReader(raw), 1<<20)
	assert.ErrorIs(t, err, errBadControlFrame)
}

func TestWriteFrameHeaderBuckets(t *testing.T) {
	cases := []struct {
		size       int
		wantByte1  byte
		headerSize int
	}{
		{5, 5, 2},
		{125, 125, 2},
		{126, 126, 4},
		{65535, 126, 4},
		{65536, 127, 10},
	}

	for _, tc := range cases {
		var buf bytes.Buffer
		payload := bytes.Repeat([]byte{0x01}, tc.size)
		require.NoError(t, writeFrame(&buf, opBinary, payload))

		raw := buf.Bytes()
		assert.Equal(t, byte(0x80|opBinary), raw[0], "size %d", tc.size)
		// Server frames are unmasked: MASK bit clear.
		assert.Equal(t, tc.wantByte1, raw[1]&0x7F, "size %d", tc.size)
		assert.Zero(t, raw[1]&0x80, "size %d", tc.size)
		assert.Len(t, raw, tc.headerSize+tc.size, "size %d", tc.size)

		switch tc.headerSize {
		case 4:
			assert.Equal(t, uint16(tc.size), binary.BigEndian.Uint16(raw[2:4]))
		case 10:
			assert.Equal(t, uint64(tc.size), binary.BigEndian.Uint64(raw[2:10]))
		}
	}
}

func TestClosePayloadRoundTrip(t *testing.T) {
	p := closePayload(CloseTooLarge, "message too large")
	code, reason := parseClosePayload(p)
	assert.Equal(t, CloseTooLarge, code)
	assert.Equal(t, "message too large", reason)

	code, reason = parseClosePayload(nil)
	assert.Equal(t, CloseNormal, code)
	assert.Empty(t, reason)

	// Reasons longer than a control frame payload are truncated.
	long := closePayload(CloseNormal, string(bytes.Repeat([]byte{'r'}, 200)))
	assert.LessOrEqual(t, len(long), 125)
}
