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

// Package requestid assigns each request a correlation id, echoed in the
// response header, attached to the Context (so error envelopes carry it),
// and added to the request-scoped logger.
package requestid

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/rush-http/rush"
)

// Option defines functional options for requestid middleware configuration.
type Option func(*config)

type config struct {
	headerName    string
	generator     func() string
	allowClientID bool
}

func defaultConfig() *config {
	return &config{
		headerName:    "X-Request-ID",
		generator:     generateUUIDv7,
		allowClientID: true,
	}
}

// generateUUIDv7 generates a UUID v7 string. UUID v7 is time-ordered and
// lexicographically sortable (RFC 9562), which keeps correlation ids
// groupable by time in log storage.
func generateUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ulidEntropy is a shared entropy source providing monotonic ordering within
// the same millisecond.
var (
	ulidEntropy     = ulid.Monotonic(rand.Reader, 0)
	ulidEntropyLock sync.Mutex
)

func generateULID() string {
	ulidEntropyLock.Lock()
	defer ulidEntropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// WithHeader sets the header carrying the id (default "X-Request-ID").
func WithHeader(name string) Option {
	return func(c *config) {
		if name != "" {
			c.headerName = name
		}
	}
}

// WithULID uses ULIDs instead of UUID v7: same time-ordering, 26 characters.
func WithULID() Option {
	return func(c *config) { c.generator = generateULID }
}

// WithGenerator uses a custom id generator.
func WithGenerator(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.generator = fn
		}
	}
}

// WithAllowClientID controls whether an id supplied by the client in the
// request header is trusted (default true). Disable at trust boundaries.
func WithAllowClientID(allow bool) Option {
	return func(c *config) { c.allowClientID = allow }
}

// New returns middleware that assigns the request's correlation id.
//
//	r := rush.MustNew()
//	r.Use(requestid.New())
//
//	r.GET("/users/:id", func(c *rush.Context) {
//	    c.Logger().Info("lookup", "request_id", c.RequestID())
//	})
func New(opts ...Option) rush.HandlerFunc {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c *rush.Context) {
		var id string
		if cfg.allowClientID {
			id = c.Request.Header.Get(cfg.headerName)
		}
		if id == "" {
			id = cfg.generator()
		}

		c.Header(cfg.headerName, id)
		c.SetRequestID(id)
		c.SetLogger(c.Logger().With("request_id", id))

		c.Next()
	}
}
