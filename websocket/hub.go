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
	"sync"
	"time"
)

// Hub tracks live connections and their room memberships, and drives the
// heartbeat. Rooms are process-local.
//
// Invariant: room membership is mirrored between Hub.rooms and Conn.rooms;
// removing a connection removes it from every room, and empty rooms are
// deleted. All membership mutation happens under Hub.mu, with Conn.rooms
// updated in the same critical section.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[*Conn]struct{}

	heartbeatOnce sync.Once
	stop          chan struct{}
	stopOnce      sync.Once
}

// NewHub creates an empty hub. Handlers create a private hub by default;
// create one explicitly to share connections across routes via WithHub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*Conn),
		rooms: make(map[string]map[*Conn]struct{}),
		stop:  make(chan struct{}),
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomCount returns the number of members in a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the names of non-empty rooms.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		out = append(out, room)
	}
	return out
}

// Broadcast writes data as a text frame to every member of room except
// excluded (which may be nil). Per-connection write errors are swallowed so
// one dead socket cannot break the fan-out; the reader side will reap the
// dead connection.
//
// The member set is snapshotted before writing, so user writes never run
// under the hub lock.
func (h *Hub) Broadcast(room string, data []byte, excluded *Conn) {
	for _, conn := range h.snapshot(room, excluded) {
		_ = conn.write(opText, data)
	}
}

// BroadcastBinary is Broadcast with a binary frame.
func (h *Hub) BroadcastBinary(room string, data []byte, excluded *Conn) {
	for _, conn := range h.snapshot(room, excluded) {
		_ = conn.write(opBinary, data)
	}
}

func (h *Hub) snapshot(room string, excluded *Conn) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.rooms[room]
	out := make([]*Conn, 0, len(members))
	for conn := range members {
		if conn != excluded {
			out = append(out, conn)
		}
	}
	return out
}

// CloseAll closes every connection with a normal close code and stops the
// heartbeat. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close(CloseNormal, "server shutting down")
	}

	h.stopOnce.Do(func() { close(h.stop) })
}

// add registers a connection, enforcing maxConnections. Returns false when
// the bound is reached.
func (h *Hub) add(c *Conn, cfg *config) bool {
	h.mu.Lock()
	if cfg.maxConnections > 0 && len(h.conns) >= cfg.maxConnections {
		h.mu.Unlock()
		return false
	}
	h.conns[c.id] = c
	h.mu.Unlock()

	h.heartbeatOnce.Do(func() {
		go h.heartbeatLoop(cfg.heartbeatInterval, cfg.pongTimeout)
	})
	return true
}

// remove drops a connection from the hub and from every room it joined.
func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, c.id)

	c.roomsMu.Lock()
	for room := range c.rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	clear(c.rooms)
	c.roomsMu.Unlock()
}

func (h *Hub) join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}

	c.roomsMu.Lock()
	c.rooms[room] = struct{}{}
	c.roomsMu.Unlock()
}

func (h *Hub) leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members := h.rooms[room]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}

	c.roomsMu.Lock()
	delete(c.rooms, room)
	c.roomsMu.Unlock()
}

// heartbeatLoop pings every connection on the interval and reaps those whose
// last pong is older than the timeout with close code 1006.
func (h *Hub) heartbeatLoop(interval, pongTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.mu.RLock()
			conns := make([]*Conn, 0, len(h.conns))
			for _, c := range h.conns {
				conns = append(conns, c)
			}
			h.mu.RUnlock()

			now := monotonicNow()
			for _, c := range conns {
				if time.Duration(now-c.lastPong.Load()) > pongTimeout {
					// No pong inside the window: the peer is gone even if
					// the TCP connection still looks open.
					_ = c.write(opClose, closePayload(CloseAbnormal, "pong timeout"))
					c.teardown(CloseAbnormal, "pong timeout")
					continue
				}
				_ = c.Ping(nil)
			}
		}
	}
}
