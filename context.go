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
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// H is a shortcut for map[string]any, used for ad-hoc JSON responses.
type H = map[string]any

// HandlerFunc defines the handler function signature for route handlers and
// middleware. Middleware call c.Next() to advance the chain; handlers
// normally just write a response.
//
// Example middleware:
//
//	func Timing() rush.HandlerFunc {
//	    return func(c *rush.Context) {
//	        start := time.Now()
//	        c.Next()
//	        c.Logger().Info("handled", "duration", time.Since(start))
//	    }
//	}
type HandlerFunc func(*Context)

// Context represents the context of the current HTTP request. It carries the
// raw request and response, bound route parameters, caller-scoped state, the
// request-scoped logger, and the staged response body.
//
// ⚠️ THREAD SAFETY: Context is NOT thread-safe. A Context instance is bound
// to a single HTTP request and must only be accessed by the goroutine
// handling that request.
//
// ⚠️ MEMORY SAFETY: Context objects are pooled and reused. Do not retain
// references beyond the request lifetime; copy what you need before starting
// goroutines.
//
// Parameter storage uses fixed-size arrays for up to 8 parameters and spills
// to the Params map beyond that; routes with more than 8 parameters are rare
// enough that the map path is not worth optimizing.
type Context struct {
	Request  *http.Request
	Response http.ResponseWriter

	handlers []HandlerFunc
	router   *Router

	// Chain state. depth is the frame currently executing: 0 is the
	// dispatcher, i+1 is handlers[i]. advanced[d] records whether frame d
	// already advanced the chain; a second advance from the same frame is
	// the NextCalledTwice misuse.
	depth    int32
	advanced []bool
	aborted  bool

	paramCount  int32
	paramKeys   [8]string
	paramValues [8]string
	Params      map[string]string // overflow storage for >8 parameters

	// Body is the decoded request body, populated by body-parsing
	// middleware. The core never reads it; nil means no parser ran.
	Body any

	status    int    // staged status code (0 = unset)
	result    any    // staged response body, serialized after the chain unwinds
	state     map[string]any
	requestID string
	route     *Route
	logger    *slog.Logger
	errors    []error

	queryCache url.Values
}

// NewContext creates a detached context for the given request and response.
// Primarily useful in tests; the router obtains contexts from its pool.
func NewContext(w http.ResponseWriter, r *http.Request) *Context {
	c := &Context{}
	c.reset()
	c.Request = r
	c.Response = w
	return c
}

// reset clears the context for reuse. Allocated slices and maps are retained
// to avoid churn; their contents are wiped.
func (c *Context) reset() {
	c.Request = nil
	c.Response = nil
	c.handlers = nil
	c.router = nil
	c.depth = 0
	c.advanced = c.advanced[:0]
	c.aborted = false
	c.paramCount = 0
	for i := range c.paramKeys {
		c.paramKeys[i] = ""
		c.paramValues[i] = ""
	}
	if c.Params != nil {
		clear(c.Params)
	}
	c.Body = nil
	c.status = 0
	c.result = nil
	if c.state != nil {
		clear(c.state)
	}
	c.requestID = ""
	c.route = nil
	c.logger = nil
	c.errors = c.errors[:0]
	c.queryCache = nil
}

// begin prepares a pooled context for a request.
func (c *Context) begin(w http.ResponseWriter, r *http.Request, handlers []HandlerFunc, router *Router) {
	c.Request = r
	c.Response = w
	c.handlers = handlers
	c.router = router

	n := len(handlers) + 1
	if cap(c.advanced) < n {
		c.advanced = make([]bool, n)
	} else {
		c.advanced = c.advanced[:n]
		for i := range c.advanced {
			c.advanced[i] = false
		}
	}
	c.depth = 0
}

// Next executes the next handler in the middleware chain. Middleware call it
// to continue execution; not calling it short-circuits the remaining chain.
//
// Each frame may advance the chain at most once. A second Next() call from
// the same frame panics with ErrNextCalledTwice, which the pipeline converts
// into a 500 through the exception filter: double-advance would run the
// downstream handlers twice, and silently ignoring it hides the bug.
func (c *Context) Next() {
	d := c.depth
	if int(d) < len(c.advanced) && c.advanced[d] {
		panic(ErrNextCalledTwice)
	}
	if int(d) < len(c.advanced) {
		c.advanced[d] = true
	}

	if c.aborted {
		return
	}
	// Skip remaining work for canceled requests unless disabled.
	if c.router != nil && c.router.checkCancellation && c.Request != nil {
		if err := c.Request.Context().Err(); err != nil {
			return
		}
	}

	idx := int(d)
	if idx < len(c.handlers) {
		c.depth = d + 1
		c.handlers[idx](c)
		c.depth = d
	}
}

// Abort stops the handler chain from executing any further handlers.
// Handlers that have already run are unaffected.
func (c *Context) Abort() {
	c.aborted = true
}

// IsAborted returns true if the handler chain has been aborted.
func (c *Context) IsAborted() bool {
	return c.aborted
}

// setParam records one bound route parameter.
func (c *Context) setParam(key, value string) {
	if i := c.paramCount; i < 8 {
		c.paramKeys[i] = key
		c.paramValues[i] = value
		c.paramCount = i + 1
		return
	}
	if c.Params == nil {
		c.Params = make(map[string]string, 2)
	}
	c.Params[key] = value
}

// Param returns the value of the URL parameter by key, or "" if absent.
//
//	r.GET("/users/:id", func(c *rush.Context) {
//	    userID := c.Param("id")
//	})
func (c *Context) Param(key string) string {
	for i := range c.paramCount {
		if c.paramKeys[i] == key {
			return c.paramValues[i]
		}
	}
	return c.Params[key]
}

// ParamMap returns all bound parameters as a fresh map.
func (c *Context) ParamMap() map[string]string {
	m := make(map[string]string, int(c.paramCount)+len(c.Params))
	for i := range c.paramCount {
		m[c.paramKeys[i]] = c.paramValues[i]
	}
	for k, v := range c.Params {
		m[k] = v
	}
	return m
}

// Method returns the HTTP method of the request.
func (c *Context) Method() string {
	return c.Request.Method
}

// Path returns the request URL path.
func (c *Context) Path() string {
	return c.Request.URL.Path
}

// Route returns the matched route, or nil when no route matched (404/405
// handlers, custom NoRoute).
func (c *Context) Route() *Route {
	return c.route
}

// Query returns the first query value for key, or "" if absent.
func (c *Context) Query(key string) string {
	return c.queryValues().Get(key)
}

// DefaultQuery returns the first query value for key, or def if absent.
func (c *Context) DefaultQuery(key, def string) string {
	if vs, ok := c.queryValues()[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return def
}

// QueryValues returns the parsed query string. The result is cached for the
// lifetime of the request.
func (c *Context) QueryValues() url.Values {
	return c.queryValues()
}

func (c *Context) queryValues() url.Values {
	if c.queryCache == nil {
		c.queryCache = c.Request.URL.Query()
	}
	return c.queryCache
}

// GetHeader returns the named request header.
func (c *Context) GetHeader(key string) string {
	return c.Request.Header.Get(key)
}

// Header sets a response header.
func (c *Context) Header(key, value string) {
	c.Response.Header().Set(key, value)
}

// Set stores a caller-scoped value on the context. State survives for the
// duration of the request only.
func (c *Context) Set(key string, value any) {
	if c.state == nil {
		c.state = make(map[string]any, 4)
	}
	c.state[key] = value
}

// Get returns a caller-scoped value and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.state[key]
	return v, ok
}

// GetString returns a caller-scoped string value, or "" when absent or not a
// string.
func (c *Context) GetString(key string) string {
	if v, ok := c.state[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetRequestID sets the correlation id for this request. Usually done by the
// requestid middleware; the id is echoed in error envelopes.
func (c *Context) SetRequestID(id string) {
	c.requestID = id
}

// RequestID returns the correlation id, or "" if none was assigned.
func (c *Context) RequestID() string {
	return c.requestID
}

// Logger returns the request-scoped logger. Never nil: when no logger was
// configured a no-op logger is returned.
func (c *Context) Logger() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return noopLogger
}

// SetLogger replaces the request-scoped logger.
func (c *Context) SetLogger(l *slog.Logger) {
	c.logger = l
}

// Error collects an error during request processing. Collected errors are
// available via Errors and are logged by the pipeline after the chain
// unwinds. Collecting an error does not interrupt the chain; panic (or use
// the exception filter) for fatal conditions.
func (c *Context) Error(err error) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// Errors returns the errors collected so far.
func (c *Context) Errors() []error {
	return c.errors
}

// Status stages the response status code without writing headers. The staged
// code is applied when the response is serialized; writers like JSON take an
// explicit code and ignore it.
func (c *Context) Status(code int) {
	c.status = code
}

// StatusCode returns the staged status code (0 = unset).
func (c *Context) StatusCode() int {
	return c.status
}

// Respond stages a response body to be serialized after the chain unwinds:
// string → text/plain, []byte → application/octet-stream, anything else →
// JSON. Use the explicit writers (JSON, String, Data) to write immediately.
func (c *Context) Respond(body any) {
	c.result = body
}

// Written reports whether response headers have been sent.
func (c *Context) Written() bool {
	if rw, ok := c.Response.(*responseWriter); ok {
		return rw.Written()
	}
	return false
}

// writeHeaderOnce writes the status code unless headers are already out.
func (c *Context) writeHeaderOnce(code int) {
	if rw, ok := c.Response.(*responseWriter); ok {
		if !rw.Written() {
			rw.WriteHeader(code)
		}
		return
	}
	c.Response.WriteHeader(code)
}

// JSON sends a JSON response with the specified status code.
// Returns an error if encoding or writing fails.
//
// The body is encoded to a buffer first so an encoding failure cannot leave
// a half-written response.
func (c *Context) JSON(code int, obj any) error {
	if c.Response == nil {
		return ErrContextResponseNil
	}

	var buf strings.Builder
	buf.Grow(256)
	if err := json.NewEncoder(&buf).Encode(obj); err != nil {
		return fmt.Errorf("JSON encoding failed for type %T: %w", obj, err)
	}

	c.Response.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.writeHeaderOnce(code)
	_, err := c.Response.Write([]byte(buf.String()))
	return err
}

// String sends a plain text response. The value is used as-is; for
// formatting use Stringf.
func (c *Context) String(code int, value string) error {
	if c.Response.Header().Get("Content-Type") == "" {
		c.Response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	c.writeHeaderOnce(code)
	if _, err := c.Response.Write([]byte(value)); err != nil {
		return fmt.Errorf("writing string response: %w", err)
	}
	return nil
}

// Stringf sends a formatted plain text response.
func (c *Context) Stringf(code int, format string, values ...any) error {
	return c.String(code, fmt.Sprintf(format, values...))
}

// HTML sends an HTML response with the specified status code.
func (c *Context) HTML(code int, html string) error {
	c.Response.Header().Set("Content-Type", "text/html; charset=utf-8")
	c.writeHeaderOnce(code)
	if _, err := c.Response.Write([]byte(html)); err != nil {
		return fmt.Errorf("writing html response: %w", err)
	}
	return nil
}

// Data sends raw bytes with the given content type. An empty contentType
// defaults to application/octet-stream.
func (c *Context) Data(code int, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Response.Header().Set("Content-Type", contentType)
	c.writeHeaderOnce(code)
	if _, err := c.Response.Write(data); err != nil {
		return fmt.Errorf("writing data response: %w", err)
	}
	return nil
}

// NoContent sends a status-only response.
func (c *Context) NoContent(code int) {
	c.writeHeaderOnce(code)
}

// Redirect sends an HTTP redirect to the given location.
func (c *Context) Redirect(code int, location string) {
	c.Response.Header().Set("Location", location)
	c.writeHeaderOnce(code)
}
