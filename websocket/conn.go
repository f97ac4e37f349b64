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
	"bufio"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of data message delivered to OnMessage.
// The values match the wire opcodes (and gorilla/websocket's constants).
type MessageType int

const (
	// TextMessage is a UTF-8 text payload.
	TextMessage MessageType = 1
	// BinaryMessage is an opaque binary payload.
	BinaryMessage MessageType = 2
)

// ErrConnectionClosed is returned by writes on a closed connection.
var ErrConnectionClosed = errors.New("websocket: connection closed")

// Conn is one accepted WebSocket connection.
//
// Ownership: exactly one goroutine (the upgrade request's goroutine) reads
// the socket. Writes may be issued from any goroutine; they serialize on a
// connection-local mutex, so interleaved frames cannot corrupt the stream.
// Writes from a single caller are emitted in call order.
//
// Close is idempotent; writes after Close return ErrConnectionClosed.
type Conn struct {
	id   string
	path string

	sock net.Conn
	br   *bufio.Reader
	cfg  *config
	hub  *Hub

	writeMu sync.Mutex
	closed  atomic.Bool
	tearOnce sync.Once

	lastPong atomic.Int64 // monotonic nanoseconds of the last pong

	roomsMu sync.Mutex
	rooms   map[string]struct{}

	onMessage func(messageType MessageType, data []byte)
	onClose   func(code int, reason string)
}

func newConn(sock net.Conn, br *bufio.Reader, path string, cfg *config, hub *Hub) *Conn {
	c := &Conn{
		id:    uuid.NewString(),
		path:  path,
		sock:  sock,
		br:    br,
		cfg:   cfg,
		hub:   hub,
		rooms: make(map[string]struct{}, 2),
	}
	c.markAlive()
	return c
}

// ID returns the connection's unique id.
func (c *Conn) ID() string {
	return c.id
}

// Path returns the request path at upgrade time.
func (c *Conn) Path() string {
	return c.path
}

// IsAlive reports whether the peer answered the most recent heartbeat window.
func (c *Conn) IsAlive() bool {
	return time.Duration(monotonicNow()-c.lastPong.Load()) <= c.cfg.pongTimeout
}

// OnMessage registers the callback for incoming text and binary messages.
// Messages are delivered in arrival order from the connection's reader
// goroutine; a slow callback backpressures the peer. Register inside the
// route handler, before any message can arrive.
func (c *Conn) OnMessage(fn func(messageType MessageType, data []byte)) {
	c.onMessage = fn
}

// OnClose registers the callback invoked exactly once when the connection
// closes, whether by the client, a heartbeat timeout, or Close.
func (c *Conn) OnClose(fn func(code int, reason string)) {
	c.onClose = fn
}

// SendText writes a text frame.
func (c *Conn) SendText(data string) error {
	return c.write(opText, []byte(data))
}

// SendBinary writes a binary frame.
func (c *Conn) SendBinary(data []byte) error {
	return c.write(opBinary, data)
}

// Ping writes a ping frame. The peer answers with a pong carrying the same
// payload.
func (c *Conn) Ping(payload []byte) error {
	return c.write(opPing, payload)
}

// Join adds the connection to a room.
func (c *Conn) Join(room string) {
	if c.closed.Load() {
		return
	}
	c.hub.join(c, room)
}

// Leave removes the connection from a room.
func (c *Conn) Leave(room string) {
	c.hub.leave(c, room)
}

// Rooms returns the rooms this connection belongs to, sorted.
func (c *Conn) Rooms() []string {
	c.roomsMu.Lock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	c.roomsMu.Unlock()
	sort.Strings(out)
	return out
}

// Close sends a close frame and tears the connection down. It is idempotent:
// subsequent calls (and writes) are no-ops returning ErrConnectionClosed.
func (c *Conn) Close(code int, reason string) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	// Best effort: the peer may already be gone.
	_ = c.write(opClose, closePayload(code, reason))
	c.teardown(code, reason)
	return nil
}

// write serializes one frame onto the socket.
func (c *Conn) write(opcode byte, payload []byte) error {
	if c.closed.Load() && opcode != opClose {
		return ErrConnectionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.writeTimeout > 0 {
		_ = c.sock.SetWriteDeadline(time.Now().Add(c.cfg.writeTimeout))
	}
	return writeFrame(c.sock, opcode, payload)
}

// teardown finalizes the close exactly once: leaves every room, emits the
// close event, and destroys the socket.
func (c *Conn) teardown(code int, reason string) {
	c.tearOnce.Do(func() {
		c.closed.Store(true)
		c.hub.remove(c)
		if c.onClose != nil {
			c.onClose(code, reason)
		}
		_ = c.sock.Close()
	})
}

func (c *Conn) markAlive() {
	c.lastPong.Store(monotonicNow())
}

// readLoop is the single reader for the connection. It parses frames until
// the peer closes, a protocol violation occurs, or the transport breaks, and
// always finishes in teardown.
func (c *Conn) readLoop() {
	for {
		if c.closed.Load() {
			return
		}

		// The read deadline doubles as the transport-level liveness bound;
		// the heartbeat refreshes effective liveness through pongs.
		_ = c.sock.SetReadDeadline(time.Now().Add(c.cfg.pongTimeout + c.cfg.heartbeatInterval))

		f, err := readFrame(c.br, c.cfg.maxMessageSize)
		if err != nil {
			switch {
			case errors.Is(err, errMessageTooLarge):
				_ = c.write(opClose, closePayload(CloseTooLarge, "message too large"))
				c.teardown(CloseTooLarge, "message too large")
			case errors.Is(err, errUnmaskedFrame),
				errors.Is(err, errReservedBits),
				errors.Is(err, errFragmented),
				errors.Is(err, errBadControlFrame),
				errors.Is(err, errUnknownOpcode):
				_ = c.write(opClose, closePayload(CloseProtocolError, err.Error()))
				c.teardown(CloseProtocolError, err.Error())
			default:
				c.teardown(CloseAbnormal, "transport error")
			}
			return
		}

		switch f.opcode {
		case opText:
			if c.onMessage != nil {
				c.onMessage(TextMessage, f.payload)
			}
		case opBinary:
			if c.onMessage != nil {
				c.onMessage(BinaryMessage, f.payload)
			}
		case opPing:
			_ = c.write(opPong, f.payload)
		case opPong:
			// Liveness is pong-driven only: data frames do not count, so a
			// peer that streams but never answers pings is still reaped.
			c.markAlive()
		case opClose:
			code, reason := parseClosePayload(f.payload)
			_ = c.write(opClose, closePayload(code, ""))
			c.teardown(code, reason)
			return
		}
	}
}

// monotonicBase anchors monotonic timestamps; only differences are used.
var monotonicBase = time.Now()

func monotonicNow() int64 {
	return int64(time.Since(monotonicBase))
}
