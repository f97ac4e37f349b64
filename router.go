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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rush-http/rush/httperr"
)

// noopLogger is a singleton no-op logger used when no logging is configured.
var noopLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// NoopLogger returns the singleton no-op logger.
func NoopLogger() *slog.Logger {
	return noopLogger
}

// Option defines functional options for router configuration.
type Option func(*Router)

// ExceptionFilter inspects an error that escaped the handler chain and may
// write a response. If it leaves the response unwritten, the default filter
// emits the generic 500 envelope. A router has at most one filter installed.
type ExceptionFilter func(c *Context, err error)

// RouteMatch is the result of a successful lookup: the matched route and the
// parameters bound from the concrete path.
type RouteMatch struct {
	Route  *Route
	Params map[string]string
}

// Router is the HTTP application core: it owns the route tree, the route
// cache, the global middleware chain, the context pool, and the per-request
// pipeline.
//
// The Router is safe for concurrent use. Route mutation (registration,
// Clear) is exclusive; lookups proceed concurrently with each other and
// serialize against mutations through a reader/writer lock, so a lookup
// observes either the pre- or post-mutation tree, never a partial one.
//
// Example:
//
//	r := rush.MustNew()
//	r.Use(requestid.New())
//	r.GET("/users/:id", func(c *rush.Context) {
//	    c.JSON(http.StatusOK, rush.H{"id": c.Param("id")})
//	})
//	http.ListenAndServe(":8080", r)
type Router struct {
	mu         sync.RWMutex // serializes tree/middleware mutation against lookups
	tree       *node
	routeCount int
	routeInfos []RouteInfo
	middleware []HandlerFunc

	cache *routeCache
	pool  *contextPool

	noRouteHandler  HandlerFunc
	noRouteMu       sync.RWMutex
	exceptionFilter ExceptionFilter
	filterMu        sync.RWMutex

	observability ObservabilityRecorder
	logger        *slog.Logger

	// Configuration (fixed after New)
	caseSensitive     bool
	strictSlash       bool
	maxRoutes         int
	cacheSize         int
	poolSize          int
	requestTimeout    time.Duration
	checkCancellation bool
	development       bool
	enableH2C         bool
	serverTimeouts    *serverTimeouts
}

// New creates a router with optional configuration. Configuration is
// validated immediately rather than at request time.
//
// For a version that panics instead of returning an error, use MustNew.
func New(opts ...Option) (*Router, error) {
	r := &Router{
		tree:              &node{},
		caseSensitive:     true,
		maxRoutes:         defaultMaxRoutes,
		cacheSize:         defaultCacheSize,
		poolSize:          defaultPoolSize,
		checkCancellation: true,
		logger:            noopLogger,
	}

	for _, opt := range opts {
		opt(r)
	}

	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("router configuration validation failed: %w", err)
	}

	r.cache = newRouteCache(r.cacheSize)
	r.pool = newContextPool(r.poolSize)

	return r, nil
}

// MustNew creates a router and panics if the configuration is invalid.
func MustNew(opts ...Option) *Router {
	r, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("rush.MustNew: %v", err))
	}
	return r
}

func (r *Router) validate() error {
	if r.cacheSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrCacheSizeInvalid, r.cacheSize)
	}
	if r.poolSize <= 0 {
		return fmt.Errorf("%w: got %d", ErrPoolSizeInvalid, r.poolSize)
	}
	if r.maxRoutes <= 0 {
		return fmt.Errorf("%w: got %d", ErrMaxRoutesInvalid, r.maxRoutes)
	}
	return nil
}

// WithCaseInsensitive makes pattern registration and path matching
// case-insensitive: both sides are lowercased before comparison.
func WithCaseInsensitive() Option {
	return func(r *Router) { r.caseSensitive = false }
}

// WithStrictSlash preserves trailing slashes in patterns and disables the
// trailing-slash retry on lookup: "/users" and "/users/" become distinct.
func WithStrictSlash() Option {
	return func(r *Router) { r.strictSlash = true }
}

// WithMaxRoutes bounds the number of registerable routes (default 10000).
func WithMaxRoutes(n int) Option {
	return func(r *Router) { r.maxRoutes = n }
}

// WithRouteCacheSize bounds the route lookup cache (default 1000). On
// overflow the older half of the entries is evicted.
func WithRouteCacheSize(n int) Option {
	return func(r *Router) { r.cacheSize = n }
}

// WithContextPoolSize bounds the number of recycled request contexts
// (default 50). Excess contexts are dropped for the garbage collector.
func WithContextPoolSize(n int) Option {
	return func(r *Router) { r.poolSize = n }
}

// WithRequestTimeout applies a deadline to every request. On expiry the
// handler sees a canceled request context; if nothing was written yet the
// pipeline responds 408.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Router) { r.requestTimeout = d }
}

// WithCancellationCheck enables or disables request-context cancellation
// checks between chain steps (default enabled).
func WithCancellationCheck(enabled bool) Option {
	return func(r *Router) { r.checkCancellation = enabled }
}

// WithDevelopment switches error rendering to development mode: stack traces
// are included in 500 envelopes. Never enable in production.
func WithDevelopment() Option {
	return func(r *Router) { r.development = true }
}

// WithLogger sets the base logger. Request-scoped loggers derive from it
// with method and route-pattern attributes.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// Use adds global middleware executed for every request, in registration
// order, before any route middleware and before the 404/405 terminal step.
//
//	r.Use(requestid.New(), timing())
func (r *Router) Use(middleware ...HandlerFunc) {
	r.mu.Lock()
	r.middleware = append(r.middleware, middleware...)
	r.mu.Unlock()
}

// NoRoute sets a custom handler for requests that match no registered route.
// Passing nil restores the default JSON 404 envelope. Method mismatches
// (405) are handled before this handler is consulted.
func (r *Router) NoRoute(handler HandlerFunc) {
	r.noRouteMu.Lock()
	r.noRouteHandler = handler
	r.noRouteMu.Unlock()
}

// SetExceptionFilter installs the exception filter consulted when an error
// escapes the chain. Passing nil restores the default filter.
func (r *Router) SetExceptionFilter(f ExceptionFilter) {
	r.filterMu.Lock()
	r.exceptionFilter = f
	r.filterMu.Unlock()
}

// SetObservabilityRecorder sets the observability recorder for request
// metrics and request-scoped logging. Pass nil to disable.
func (r *Router) SetObservabilityRecorder(rec ObservabilityRecorder) {
	r.observability = rec
}

// Find looks up the route for a method and concrete path. It is pure apart
// from populating the lookup cache and is safe to call concurrently with
// request serving. Returns nil when no route matches.
func (r *Router) Find(method, path string) *RouteMatch {
	m := r.find(method, path)
	if m == nil || m.route == nil {
		return nil
	}
	params := make(map[string]string, len(m.params))
	for _, p := range m.params {
		params[p.key] = p.value
	}
	return &RouteMatch{Route: m.route, Params: params}
}

// find resolves a lookup through the cache, falling back to tree traversal.
// Both hits and misses are memoized. The trailing-slash retry runs when the
// exact form fails and strict-slash mode is off.
func (r *Router) find(method, path string) *cachedMatch {
	if !r.caseSensitive {
		path = strings.ToLower(path)
	}
	key := method + ":" + path
	if m, ok := r.cache.get(key); ok {
		return m
	}

	m := r.traverse(method, path)
	if m.route == nil && !r.strictSlash && path != "/" && path != "" {
		alt := path
		if strings.HasSuffix(alt, "/") {
			alt = strings.TrimRight(alt, "/")
			if alt == "" {
				alt = "/"
			}
		} else {
			alt += "/"
		}
		m = r.traverse(method, alt)
	}

	r.cache.put(key, m)
	return m
}

// traverse walks the tree once under the read lock, capturing parameters
// through a scratch context.
func (r *Router) traverse(method, path string) *cachedMatch {
	scratch := r.pool.acquire()
	defer r.pool.release(scratch)

	r.mu.RLock()
	route := r.tree.lookup(method, path, scratch)
	r.mu.RUnlock()

	m := &cachedMatch{route: route}
	if route != nil {
		total := int(scratch.paramCount) + len(scratch.Params)
		if total > 0 {
			m.params = make([]paramPair, 0, total)
			for i := range scratch.paramCount {
				m.params = append(m.params, paramPair{key: scratch.paramKeys[i], value: scratch.paramValues[i]})
			}
			for k, v := range scratch.Params {
				m.params = append(m.params, paramPair{key: k, value: v})
			}
		}
	}
	return m
}

// allowedMethods returns the methods registered for the given path, sorted,
// for the 405 Allow header.
func (r *Router) allowedMethods(path string) []string {
	if !r.caseSensitive {
		path = strings.ToLower(path)
	}
	r.mu.RLock()
	methods := r.tree.methodsAt(path)
	r.mu.RUnlock()
	sort.Strings(methods)
	return methods
}

// ServeHTTP implements http.Handler. For each request it:
//
//  1. Acquires a pooled Context and wraps the ResponseWriter.
//  2. Resolves the route through the cache (including the 404/405 outcome).
//  3. Runs the global middleware chain, then route middleware, then the
//     handler, as one linear chain with single-advance Next semantics.
//  4. Serializes any staged response after the chain unwinds; an untouched
//     response becomes the 404 envelope.
//  5. Releases the context back to the pool.
//
// Errors that escape the chain (panics) are routed to the installed
// exception filter; the default filter writes the generic 500 envelope with
// the request's correlation id.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var obsState any
	if r.observability != nil {
		var enriched context.Context
		enriched, obsState = r.observability.OnRequestStart(ctx, req)
		if enriched != ctx {
			ctx = enriched
			req = req.WithContext(ctx)
		}
	}

	rw := &responseWriter{ResponseWriter: w}

	var cancel context.CancelFunc
	if r.requestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		req = req.WithContext(ctx)
		defer cancel()
	}

	path := req.URL.Path
	m := r.find(req.Method, path)

	r.mu.RLock()
	globals := r.middleware
	r.mu.RUnlock()

	var chain []HandlerFunc
	routePattern := "_not_found"
	if m != nil && m.route != nil {
		routePattern = m.route.Pattern
		chain = make([]HandlerFunc, 0, len(globals)+len(m.route.handlers))
		chain = append(chain, globals...)
		chain = append(chain, m.route.handlers...)
	} else {
		// The terminal step decides between 405 and 404 after the global
		// middleware had its chance to respond or short-circuit.
		chain = make([]HandlerFunc, 0, len(globals)+1)
		chain = append(chain, globals...)
		chain = append(chain, r.unmatchedTerminal(path))
	}

	c := r.pool.acquire()
	c.begin(rw, req, chain, r)
	if m != nil && m.route != nil {
		c.route = m.route
		for _, p := range m.params {
			c.setParam(p.key, p.value)
		}
	}
	c.logger = r.requestLogger(ctx, req, routePattern)

	func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.handleException(c, rec)
			}
		}()
		c.Next()
	}()

	r.finalize(c, rw)

	for _, err := range c.Errors() {
		c.Logger().Error("request error", "error", err)
	}

	r.pool.release(c)

	if obsState != nil {
		r.observability.OnRequestEnd(ctx, obsState, rw, routePattern)
	}
}

// unmatchedTerminal builds the chain terminal for paths without a matching
// route: 405 with Allow when other methods match, the custom NoRoute handler
// or the 404 envelope otherwise.
func (r *Router) unmatchedTerminal(path string) HandlerFunc {
	return func(c *Context) {
		if c.Written() {
			return
		}
		if allowed := r.allowedMethods(path); len(allowed) > 0 {
			c.Header("Allow", strings.Join(allowed, ", "))
			e := httperr.MethodNotAllowed().
				WithDetails(H{"allowed": allowed}).
				WithCorrelationID(c.RequestID())
			_ = httperr.Write(c.Response, e, r.development)
			return
		}

		r.noRouteMu.RLock()
		custom := r.noRouteHandler
		r.noRouteMu.RUnlock()
		if custom != nil {
			custom(c)
			return
		}

		_ = httperr.Write(c.Response, httperr.NotFound().WithCorrelationID(c.RequestID()), r.development)
	}
}

// requestLogger builds the request-scoped logger.
func (r *Router) requestLogger(ctx context.Context, req *http.Request, routePattern string) *slog.Logger {
	if r.observability != nil {
		if l := r.observability.BuildRequestLogger(ctx, req, routePattern); l != nil {
			return l
		}
	}
	if r.logger == noopLogger {
		return noopLogger
	}
	return r.logger.With("method", req.Method, "route", routePattern)
}

// handleException routes an escaped panic value through the exception
// filter. The default filter writes the 500 envelope; a custom filter may
// write its own response, and the default runs only if it does not.
func (r *Router) handleException(c *Context, rec any) {
	err, ok := rec.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", rec)
	}

	var e *httperr.Error
	if !errors.As(err, &e) {
		e = httperr.Internal(err)
		if errors.Is(err, ErrNextCalledTwice) {
			e.Message = "internal server error: middleware advanced the chain twice"
		}
	}
	if e.CorrelationID == "" {
		e.CorrelationID = c.RequestID()
	}
	if r.development && e.Stack == "" {
		e.Stack = string(debug.Stack())
	}

	c.Logger().Error("unhandled error in handler chain", "error", err, "status", e.Status)

	r.filterMu.RLock()
	filter := r.exceptionFilter
	r.filterMu.RUnlock()
	if filter != nil {
		filter(c, err)
	}
	if !c.Written() {
		_ = httperr.Write(c.Response, e, r.development)
	}
	c.Abort()
}

// finalize serializes the staged response after the chain unwinds. The
// response is left alone if a handler already wrote it.
func (r *Router) finalize(c *Context, rw *responseWriter) {
	if rw.Written() {
		return
	}

	// Deadline expiry with nothing written renders 408.
	if err := c.Request.Context().Err(); errors.Is(err, context.DeadlineExceeded) {
		_ = httperr.Write(rw, httperr.Timeout().WithCorrelationID(c.RequestID()), r.development)
		return
	}

	status := c.status
	if status == 0 {
		status = http.StatusOK
	}

	switch body := c.result.(type) {
	case nil:
		if c.status != 0 {
			rw.WriteHeader(c.status)
			return
		}
		// Nothing staged, nothing written, default status: the request fell
		// through every handler without producing a response.
		_ = httperr.Write(rw, httperr.NotFound().WithCorrelationID(c.RequestID()), r.development)
	case string:
		_ = c.String(status, body)
	case []byte:
		_ = c.Data(status, "application/octet-stream", body)
	default:
		_ = c.JSON(status, body)
	}
}

// PoolStatistics returns counters describing context pool effectiveness.
func (r *Router) PoolStatistics() PoolStats {
	return r.pool.stats()
}

// CacheLen returns the number of memoized route lookups. Exposed for tests
// and diagnostics.
func (r *Router) CacheLen() int {
	return r.cache.len()
}
