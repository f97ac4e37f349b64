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

// Package rush implements the core of an HTTP application framework:
// a radix-tree router with a bounded route cache, a cooperative middleware
// chain with exactly-once Next semantics, pooled per-request contexts, and
// the request pipeline that ties them together.
//
// Quick start:
//
//	r := rush.MustNew()
//	r.Use(requestid.New())
//	r.GET("/users/:id", func(c *rush.Context) {
//	    c.JSON(http.StatusOK, rush.H{"id": c.Param("id")})
//	})
//	r.Serve(":8080")
//
// Routing supports static segments, named parameters (:name) and a terminal
// wildcard (*). Matching prefers static over parameter over wildcard children
// at every node and runs in O(path segments). Successful and failed lookups
// are cached per method and path; the cache is invalidated whenever the route
// set changes.
//
// Middleware are plain HandlerFuncs that call c.Next() to advance the chain.
// Calling Next twice from the same frame is a programming error and fails the
// request through the installed exception filter. Static file serving lives
// in the static subpackage; WebSocket upgrade, framing and rooms live in the
// websocket subpackage; structured logging in logging.
package rush
