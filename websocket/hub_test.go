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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPipeConn builds a Conn over one side of a net.Pipe, with a goroutine
// draining the peer side so frame writes never block.
func newPipeConn(t *testing.T, hub *Hub) *Conn {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})

	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	cfg := defaultConfig()
	return newConn(server, bufio.NewReader(server), "/ws", cfg, hub)
}

func TestConnIdentity(t *testing.T) {
	hub := NewHub()
	a := newPipeConn(t, hub)
	b := newPipeConn(t, hub)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "/ws", a.Path())
	assert.True(t, a.IsAlive())
}

func TestJoinLeaveKeepsIndexesConsistent(t *testing.T) {
	hub := NewHub()
	conn := newPipeConn(t, hub)
	require.True(t, hub.add(conn, defaultConfig()))

	conn.Join("lobby")
	conn.Join("game")
	assert.ElementsMatch(t, []string{"lobby", "game"}, conn.Rooms())
	assert.Equal(t, 1, hub.RoomCount("lobby"))
	assert.Equal(t, 1, hub.RoomCount("game"))

	conn.Leave("lobby")
	assert.Equal(t, []string{"game"}, conn.Rooms())
	assert.Zero(t, hub.RoomCount("lobby"))

	// After joining then leaving, the connection is in no room.
	conn.Leave("game")
	assert.Empty(t, conn.Rooms())
	assert.Empty(t, hub.Rooms(), "empty rooms must be deleted")
}

func TestRemoveClearsEveryRoom(t *testing.T) {
	hub := NewHub()
	cfg := defaultConfig()

	a := newPipeConn(t, hub)
	b := newPipeConn(t, hub)
	require.True(t, hub.add(a, cfg))
	require.True(t, hub.add(b, cfg))

	a.Join("lobby")
	a.Join("game")
	b.Join("lobby")

	hub.remove(a)

	assert.Empty(t, a.Rooms())
	assert.Equal(t, 1, hub.RoomCount("lobby"), "b stays in lobby")
	assert.Zero(t, hub.RoomCount("game"), "empty room deleted")
	assert.Equal(t, 1, hub.Count())
}

func TestMaxConnectionsBound(t *testing.T) {
	hub := NewHub()
	cfg := defaultConfig()
	cfg.maxConnections = 2

	a := newPipeConn(t, hub)
	b := newPipeConn(t, hub)
	c := newPipeConn(t, hub)

	assert.True(t, hub.add(a, cfg))
	assert.True(t, hub.add(b, cfg))
	assert.False(t, hub.add(c, cfg))
	assert.Equal(t, 2, hub.Count())
}

func TestCloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	conn := newPipeConn(t, hub)
	require.True(t, hub.add(conn, defaultConfig()))
	conn.Join("lobby")

	var closeCount int
	var closeCode int
	conn.OnClose(func(code int, _ string) {
		closeCount++
		closeCode = code
	})

	require.NoError(t, conn.Close(CloseNormal, "done"))
	assert.ErrorIs(t, conn.Close(CloseNormal, "again"), ErrConnectionClosed)

	assert.Equal(t, 1, closeCount)
	assert.Equal(t, CloseNormal, closeCode)
	assert.Zero(t, hub.Count())
	assert.Empty(t, conn.Rooms(), "disconnect removes the connection from every room")

	// Writes after close are discarded with an error.
	assert.ErrorIs(t, conn.SendText("late"), ErrConnectionClosed)
}

func TestBroadcastSnapshotExcludesSender(t *testing.T) {
	hub := NewHub()
	cfg := defaultConfig()

	a := newPipeConn(t, hub)
	b := newPipeConn(t, hub)
	require.True(t, hub.add(a, cfg))
	require.True(t, hub.add(b, cfg))
	a.Join("lobby")
	b.Join("lobby")

	members := hub.snapshot("lobby", a)
	require.Len(t, members, 1)
	assert.Same(t, b, members[0])

	assert.Len(t, hub.snapshot("lobby", nil), 2)
	assert.Empty(t, hub.snapshot("ghost-room", nil))
}
