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
	"net/http"
	"regexp"
	"time"
)

// Option defines functional options for the websocket handler.
type Option func(*config)

// config holds the websocket handler configuration.
type config struct {
	maxMessageSize    int64
	maxConnections    int
	heartbeatInterval time.Duration
	pongTimeout       time.Duration
	writeTimeout      time.Duration

	origins        []string
	originPatterns []*regexp.Regexp
	verifyClient   func(*http.Request) bool
	autoJoin       string
	hub            *Hub
}

func defaultConfig() *config {
	return &config{
		maxMessageSize:    1 << 20, // 1 MiB
		heartbeatInterval: 30 * time.Second,
		pongTimeout:       60 * time.Second,
		writeTimeout:      10 * time.Second,
	}
}

// WithMaxMessageSize bounds incoming message payloads (default 1 MiB).
// A frame exceeding the bound closes the connection with code 1009.
func WithMaxMessageSize(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxMessageSize = n
		}
	}
}

// WithMaxConnections bounds concurrent connections for this handler's hub.
// When the bound is reached new upgrades are refused with 503. Zero means
// unlimited.
func WithMaxConnections(n int) Option {
	return func(c *config) { c.maxConnections = n }
}

// WithHeartbeat configures the server-side liveness probe: a ping every
// interval, and a forced close with code 1006 when no pong arrives within
// pongTimeout. pongTimeout should comfortably exceed the interval.
func WithHeartbeat(interval, pongTimeout time.Duration) Option {
	return func(c *config) {
		if interval > 0 {
			c.heartbeatInterval = interval
		}
		if pongTimeout > 0 {
			c.pongTimeout = pongTimeout
		}
	}
}

// WithWriteTimeout bounds each frame write (default 10s). A write to a slow
// reader that stalls past the bound fails with a timeout error instead of
// blocking broadcasts; the failed write does not close the connection.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithOrigins restricts upgrades to the given exact Origin values.
// Handshakes from other origins are refused with 403. Without an allowlist
// any origin is accepted.
func WithOrigins(origins ...string) Option {
	return func(c *config) { c.origins = append(c.origins, origins...) }
}

// WithOriginPatterns restricts upgrades to Origins matching any of the given
// patterns. Combines with WithOrigins: either form passing admits the
// handshake.
func WithOriginPatterns(patterns ...*regexp.Regexp) Option {
	return func(c *config) { c.originPatterns = append(c.originPatterns, patterns...) }
}

// WithVerifyClient installs a predicate consulted during the handshake.
// Returning false refuses the upgrade with 401.
func WithVerifyClient(fn func(*http.Request) bool) Option {
	return func(c *config) { c.verifyClient = fn }
}

// WithAutoJoin joins every accepted connection to the named room.
func WithAutoJoin(room string) Option {
	return func(c *config) { c.autoJoin = room }
}

// WithHub shares an existing Hub across handlers, so routes can broadcast to
// each other's connections. By default each handler owns a private hub.
func WithHub(h *Hub) Option {
	return func(c *config) { c.hub = h }
}
