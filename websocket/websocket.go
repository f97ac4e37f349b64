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

// Package websocket upgrades HTTP requests to WebSocket connections
// (RFC 6455, version 13) and manages them: framing, rooms, broadcast, and
// heartbeat.
//
// The plugin integrates as a route handler, so the router's matching decides
// which paths speak WebSocket:
//
//	hub := websocket.NewHub()
//	r.GET("/chat/:room", websocket.New(func(conn *websocket.Conn, req *http.Request) {
//	    room := path.Base(req.URL.Path)
//	    conn.Join(room)
//	    conn.OnMessage(func(_ websocket.MessageType, data []byte) {
//	        hub.Broadcast(room, data, conn)
//	    })
//	}, websocket.WithHub(hub)))
//
// The server reads frames on the upgrade request's goroutine (single reader
// per connection) and serializes writes per connection, so SendText and
// Broadcast are safe from any goroutine. A heartbeat pings every connection
// and reaps peers that stop answering with close code 1006.
package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/rush-http/rush"
	"github.com/rush-http/rush/httperr"
)

// acceptGUID is the fixed GUID concatenated with the client key to form
// Sec-WebSocket-Accept (RFC 6455 §4.2.2).
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Handler is invoked once per accepted connection, before any message is
// read, with the connection and the original upgrade request. Register
// OnMessage/OnClose callbacks and join rooms here; the function must return
// for message delivery to begin.
type Handler func(conn *Conn, req *http.Request)

// AcceptKey computes the Sec-WebSocket-Accept value for a client key:
// base64(SHA1(key + GUID)).
func AcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// New returns a route handler that intercepts the HTTP upgrade and runs the
// WebSocket session. Handshake validation failures respond 400 (malformed
// upgrade), 403 (origin), 401 (verifyClient), or 503 (connection limit) and
// never upgrade.
func New(handler Handler, opts ...Option) rush.HandlerFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	hub := cfg.hub
	if hub == nil {
		hub = NewHub()
	}

	return func(c *rush.Context) {
		req := c.Request

		if err := validateHandshake(req); err != "" {
			refuse(c, http.StatusBadRequest, err)
			return
		}
		if !originAllowed(cfg, req) {
			refuse(c, http.StatusForbidden, "origin not allowed")
			return
		}
		if cfg.verifyClient != nil && !cfg.verifyClient(req) {
			refuse(c, http.StatusUnauthorized, "client verification failed")
			return
		}

		if cfg.maxConnections > 0 && hub.Count() >= cfg.maxConnections {
			refuse(c, http.StatusServiceUnavailable, "connection limit reached")
			return
		}

		hijacker, ok := c.Response.(http.Hijacker)
		if !ok {
			refuse(c, http.StatusInternalServerError, "response writer does not support hijacking")
			return
		}

		accept := AcceptKey(req.Header.Get("Sec-WebSocket-Key"))

		sock, brw, err := hijacker.Hijack()
		if err != nil {
			c.Logger().Error("websocket: hijack failed", "error", err)
			refuse(c, http.StatusInternalServerError, "hijack failed")
			return
		}

		conn := newConn(sock, brw.Reader, req.URL.Path, cfg, hub)
		if !hub.add(conn, cfg) {
			// Over the connection limit: plain HTTP refusal on the hijacked
			// socket, then drop it.
			_, _ = brw.WriteString("HTTP/1.1 503 Service Unavailable\r\nConnection: close\r\nContent-Length: 0\r\n\r\n")
			_ = brw.Flush()
			_ = sock.Close()
			return
		}

		if _, err := brw.WriteString("HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"); err != nil {
			hub.remove(conn)
			_ = sock.Close()
			return
		}
		if err := brw.Flush(); err != nil {
			hub.remove(conn)
			_ = sock.Close()
			return
		}

		if cfg.autoJoin != "" {
			conn.Join(cfg.autoJoin)
		}
		if handler != nil {
			handler(conn, req)
		}

		// Single-reader ownership: the upgrade goroutine reads frames until
		// the connection dies.
		conn.readLoop()
	}
}

// validateHandshake checks the RFC 6455 accept criteria. Returns a
// human-readable refusal reason, or "" when the handshake is well-formed.
func validateHandshake(req *http.Request) string {
	if req.Method != http.MethodGet {
		return "upgrade requires GET"
	}
	if !headerContainsToken(req.Header, "Upgrade", "websocket") {
		return "missing Upgrade: websocket"
	}
	if !headerContainsToken(req.Header, "Connection", "upgrade") {
		return "missing Connection: Upgrade"
	}
	if req.Header.Get("Sec-WebSocket-Version") != "13" {
		return "unsupported websocket version"
	}
	if req.Header.Get("Sec-WebSocket-Key") == "" {
		return "missing Sec-WebSocket-Key"
	}
	return ""
}

// headerContainsToken reports whether a comma-separated header contains the
// token, case-insensitively.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, value := range h.Values(name) {
		for candidate := range strings.SplitSeq(value, ",") {
			if strings.EqualFold(strings.TrimSpace(candidate), token) {
				return true
			}
		}
	}
	return false
}

// originAllowed applies the optional origin allowlist. Without one, any
// origin (including none) is accepted.
func originAllowed(cfg *config, req *http.Request) bool {
	if len(cfg.origins) == 0 && len(cfg.originPatterns) == 0 {
		return true
	}
	origin := req.Header.Get("Origin")
	for _, allowed := range cfg.origins {
		if origin == allowed {
			return true
		}
	}
	for _, pattern := range cfg.originPatterns {
		if pattern.MatchString(origin) {
			return true
		}
	}
	return false
}

// refuse writes a handshake refusal and aborts the chain.
func refuse(c *rush.Context, status int, message string) {
	code := httperr.CodeBadHandshake
	if status == http.StatusInternalServerError {
		code = httperr.CodeInternal
	}
	e := httperr.New(status, code, message).WithCorrelationID(c.RequestID())
	if err := httperr.Write(c.Response, e, false); err != nil {
		c.Logger().Error("websocket: writing refusal", "error", err)
	}
	c.Abort()
}
