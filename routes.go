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
	"fmt"
	"net/http"
	"reflect"
	"runtime"
	"sort"
	"strings"
)

// defaultMaxRoutes bounds the number of registered routes.
const defaultMaxRoutes = 10000

// Route represents a registered route: an HTTP method, a normalized pattern,
// and the handler chain (route middleware followed by the terminal handler).
type Route struct {
	Method  string
	Pattern string

	handlers []HandlerFunc
}

// Handlers returns the route's handler chain (middleware plus handler, in
// execution order).
func (r *Route) Handlers() []HandlerFunc {
	return r.handlers
}

// RouteInfo describes a registered route for introspection: debugging,
// documentation generation, and monitoring.
type RouteInfo struct {
	Method      string
	Path        string
	HandlerName string
	Middleware  []string
	ParamCount  int
}

// GET adds a route that matches GET requests to the specified path.
// The path can contain :name parameters and a terminal * wildcard.
// The last handler is the terminal handler; any preceding ones are
// route-level middleware. Panics on invalid or duplicate patterns
// (registration is a startup-time activity); use Handle to get the error
// instead.
//
//	r.GET("/users/:id", getUserHandler)
//	r.GET("/assets/*", assetHandler)
func (r *Router) GET(path string, handlers ...HandlerFunc) *Route {
	return r.mustHandle(http.MethodGet, path, handlers)
}

// POST adds a route that matches POST requests to the specified path.
func (r *Router) POST(path string, handlers ...HandlerFunc) *Route {
	return r.mustHandle(http.MethodPost, path, handlers)
}

// PUT adds a route that matches PUT requests to the specified path.
func (r *Router) PUT(path string, handlers ...HandlerFunc) *Route {
	return r.mustHandle(http.MethodPut, path, handlers)
}

// DELETE adds a route that matches DELETE requests to the specified path.
func (r *Router) DELETE(path string, handlers ...HandlerFunc) *Route {
	return r.mustHandle(http.MethodDelete, path, handlers)
}

// PATCH adds a route that matches PATCH requests to the specified path.
func (r *Router) PATCH(path string, handlers ...HandlerFunc) *Route {
	return r.mustHandle(http.MethodPatch, path, handlers)
}

// HEAD adds a route that matches HEAD requests to the specified path.
func (r *Router) HEAD(path string, handlers ...HandlerFunc) *Route {
	return r.mustHandle(http.MethodHead, path, handlers)
}

// OPTIONS adds a route that matches OPTIONS requests to the specified path.
func (r *Router) OPTIONS(path string, handlers ...HandlerFunc) *Route {
	return r.mustHandle(http.MethodOptions, path, handlers)
}

// Handle registers a route for an arbitrary method and returns an error
// instead of panicking. Failure kinds:
//
//   - ErrInvalidPattern: empty or malformed pattern, unsupported method
//   - ErrDuplicateRoute: the (method, normalized pattern) pair already exists
//   - ErrRouteCapacity: the configured route maximum would be exceeded
//
// A failed registration leaves the route set unchanged.
func (r *Router) Handle(method, path string, handlers ...HandlerFunc) (*Route, error) {
	return r.register(method, path, handlers)
}

func (r *Router) mustHandle(method, path string, handlers []HandlerFunc) *Route {
	route, err := r.register(method, path, handlers)
	if err != nil {
		panic(fmt.Sprintf("rush: %v", err))
	}
	return route
}

// supportedMethods is the set of methods routes may be registered under.
var supportedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// register validates, normalizes, and inserts a route. Mutation is exclusive
// with lookups (Router.mu); the route cache is invalidated before the lock is
// released so no lookup can observe the new tree with a stale cache entry.
func (r *Router) register(method, path string, handlers []HandlerFunc) (*Route, error) {
	if !supportedMethods[method] {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidPattern, method)
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("%w: route %s %s has no handler", ErrInvalidPattern, method, path)
	}
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: route %s %s has a nil handler", ErrInvalidPattern, method, path)
		}
	}

	normalized, segments, err := r.normalizePattern(path)
	if err != nil {
		return nil, err
	}

	// Own the handler slice: callers may reuse or append to theirs.
	chain := make([]HandlerFunc, len(handlers))
	copy(chain, handlers)

	route := &Route{Method: method, Pattern: normalized, handlers: chain}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.routeCount >= r.maxRoutes {
		return nil, fmt.Errorf("%w: limit %d", ErrRouteCapacity, r.maxRoutes)
	}
	if err := r.tree.insert(method, segments, route); err != nil {
		return nil, err
	}
	r.routeCount++
	r.routeInfos = append(r.routeInfos, buildRouteInfo(method, normalized, handlers))

	// Invalidate under the write lock: a concurrent find serializes against
	// this mutation and sees either the old tree with the old cache or the
	// new tree with an empty cache, never a mix.
	r.cache.invalidate()

	return route, nil
}

// normalizePattern applies the pattern grammar:
//
//   - segments separated by '/'; a leading '/' is implied
//   - a trailing '/' is dropped unless strict-slash mode is on
//   - ':name' matches one non-'/' segment; the name must be non-empty
//   - '*' may only appear as the entire final segment
//   - with case sensitivity off, the pattern is lowercased
//
// Returns the normalized pattern string and its segment sequence.
func (r *Router) normalizePattern(pattern string) (string, []string, error) {
	if pattern == "" {
		return "", nil, fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if !r.caseSensitive {
		pattern = strings.ToLower(pattern)
	}
	if pattern[0] != '/' {
		pattern = "/" + pattern
	}
	if !r.strictSlash && len(pattern) > 1 {
		pattern = strings.TrimRight(pattern, "/")
		if pattern == "" {
			pattern = "/"
		}
	}
	if pattern == "/" {
		return "/", nil, nil
	}

	raw := strings.Split(pattern[1:], "/")
	segments := make([]string, 0, len(raw))
	for i, segment := range raw {
		switch {
		case segment == "":
			// Only a significant trailing slash (strict-slash mode) survives
			// normalization; it becomes the slash sentinel segment.
			if i == len(raw)-1 && r.strictSlash {
				segments = append(segments, slashSentinel)
				continue
			}
			return "", nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPattern, pattern)
		case segment == WildcardKey:
			if i != len(raw)-1 {
				return "", nil, fmt.Errorf("%w: wildcard must be the final segment in %q", ErrInvalidPattern, pattern)
			}
		case strings.Contains(segment, "*"):
			return "", nil, fmt.Errorf("%w: '*' must be a whole terminal segment in %q", ErrInvalidPattern, pattern)
		case strings.HasPrefix(segment, ":"):
			if len(segment) == 1 {
				return "", nil, fmt.Errorf("%w: unnamed parameter in %q", ErrInvalidPattern, pattern)
			}
		case strings.Contains(segment, ":"):
			return "", nil, fmt.Errorf("%w: ':' may only introduce a parameter segment in %q", ErrInvalidPattern, pattern)
		}
		segments = append(segments, segment)
	}

	return pattern, segments, nil
}

// Routes returns all registered routes, sorted by method then path.
func (r *Router) Routes() []RouteInfo {
	r.mu.RLock()
	infos := make([]RouteInfo, len(r.routeInfos))
	copy(infos, r.routeInfos)
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Method == infos[j].Method {
			return infos[i].Path < infos[j].Path
		}
		return infos[i].Method < infos[j].Method
	})
	return infos
}

// Clear drops every registered route and invalidates the cache.
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree = &node{}
	r.routeCount = 0
	r.routeInfos = nil
	r.cache.invalidate()
}

// RouteExists reports whether a route is registered that matches the given
// method and concrete path.
func (r *Router) RouteExists(method, path string) bool {
	return r.find(method, path).route != nil
}

func buildRouteInfo(method, path string, handlers []HandlerFunc) RouteInfo {
	info := RouteInfo{
		Method:      method,
		Path:        path,
		HandlerName: handlerName(handlers[len(handlers)-1]),
		ParamCount:  strings.Count(path, ":"),
	}
	if len(handlers) > 1 {
		info.Middleware = make([]string, 0, len(handlers)-1)
		for _, h := range handlers[:len(handlers)-1] {
			info.Middleware = append(info.Middleware, handlerName(h))
		}
	}
	return info
}

// handlerName resolves a function name for introspection output.
func handlerName(h HandlerFunc) string {
	if h == nil {
		return "nil"
	}
	if fn := runtime.FuncForPC(reflect.ValueOf(h).Pointer()); fn != nil {
		name := fn.Name()
		if idx := strings.LastIndex(name, "/"); idx >= 0 {
			name = name[idx+1:]
		}
		return name
	}
	return "anonymous"
}
