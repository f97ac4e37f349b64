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

// Package timeout applies a per-route deadline to request handling.
//
// The downstream chain runs with a deadline-bound request context; handlers
// observe expiry through Context.Request.Context(). When the deadline passes
// before anything was written, the middleware responds 408. This is the
// route-scoped sibling of the router-wide rush.WithRequestTimeout option.
package timeout

import (
	"context"
	"errors"
	"time"

	"github.com/rush-http/rush"
	"github.com/rush-http/rush/httperr"
)

// New returns middleware enforcing the given deadline on the rest of the
// chain.
//
//	r.GET("/slow-report", timeout.New(2*time.Second), reportHandler)
//
// The rest of the chain runs synchronously and is not interrupted: the
// deadline only cancels the request context. The 408 is written after the
// chain returns, and only when the deadline has passed and nothing was
// written yet. Handlers stop early only by watching
// c.Request.Context().Done().
func New(d time.Duration) rush.HandlerFunc {
	return func(c *rush.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Written() {
			e := httperr.Timeout().WithCorrelationID(c.RequestID())
			_ = httperr.Write(c.Response, e, false)
			c.Abort()
		}
	}
}
