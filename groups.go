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

package rush

import (
	"net/http"
	"strings"
)

// Group organizes related routes under a common path prefix with shared
// middleware. Group middleware executes after global middleware and before
// route handlers.
//
//	api := r.Group("/api/v1", authMiddleware())
//	api.GET("/users", listUsers)      // GET /api/v1/users
//	api.POST("/users", createUser)    // POST /api/v1/users
type Group struct {
	router     *Router
	prefix     string
	middleware []HandlerFunc
}

// Group creates a route group with the given prefix and optional middleware.
func (r *Router) Group(prefix string, middleware ...HandlerFunc) *Group {
	return &Group{router: r, prefix: prefix, middleware: middleware}
}

// Group creates a nested group. Prefixes concatenate; middleware accumulates.
func (g *Group) Group(prefix string, middleware ...HandlerFunc) *Group {
	combined := make([]HandlerFunc, 0, len(g.middleware)+len(middleware))
	combined = append(combined, g.middleware...)
	combined = append(combined, middleware...)
	return &Group{
		router:     g.router,
		prefix:     joinPaths(g.prefix, prefix),
		middleware: combined,
	}
}

// Use appends middleware to the group. Only routes registered afterwards see
// it.
func (g *Group) Use(middleware ...HandlerFunc) {
	g.middleware = append(g.middleware, middleware...)
}

// GET registers a GET route under the group prefix.
func (g *Group) GET(path string, handlers ...HandlerFunc) *Route {
	return g.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route under the group prefix.
func (g *Group) POST(path string, handlers ...HandlerFunc) *Route {
	return g.handle(http.MethodPost, path, handlers)
}

// PUT registers a PUT route under the group prefix.
func (g *Group) PUT(path string, handlers ...HandlerFunc) *Route {
	return g.handle(http.MethodPut, path, handlers)
}

// DELETE registers a DELETE route under the group prefix.
func (g *Group) DELETE(path string, handlers ...HandlerFunc) *Route {
	return g.handle(http.MethodDelete, path, handlers)
}

// PATCH registers a PATCH route under the group prefix.
func (g *Group) PATCH(path string, handlers ...HandlerFunc) *Route {
	return g.handle(http.MethodPatch, path, handlers)
}

// HEAD registers a HEAD route under the group prefix.
func (g *Group) HEAD(path string, handlers ...HandlerFunc) *Route {
	return g.handle(http.MethodHead, path, handlers)
}

// OPTIONS registers an OPTIONS route under the group prefix.
func (g *Group) OPTIONS(path string, handlers ...HandlerFunc) *Route {
	return g.handle(http.MethodOptions, path, handlers)
}

func (g *Group) handle(method, path string, handlers []HandlerFunc) *Route {
	chain := make([]HandlerFunc, 0, len(g.middleware)+len(handlers))
	chain = append(chain, g.middleware...)
	chain = append(chain, handlers...)
	return g.router.mustHandle(method, joinPaths(g.prefix, path), chain)
}

// joinPaths concatenates two path fragments with exactly one separating
// slash.
func joinPaths(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == "" || path == "/" {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}
