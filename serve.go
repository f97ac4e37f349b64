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
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// serverTimeouts holds HTTP server timeout configuration.
type serverTimeouts struct {
	readHeader time.Duration
	read       time.Duration
	write      time.Duration
	idle       time.Duration
}

// defaultServerTimeouts returns production-safe defaults. These matter:
// servers without read/header timeouts are trivially held open by slow
// clients.
func defaultServerTimeouts() *serverTimeouts {
	return &serverTimeouts{
		readHeader: 5 * time.Second,
		read:       15 * time.Second,
		write:      30 * time.Second,
		idle:       60 * time.Second,
	}
}

// WithH2C enables HTTP/2 cleartext support.
//
// ⚠️ Only use in development or behind a trusted load balancer; never on a
// public-facing server without TLS.
func WithH2C(enable bool) Option {
	return func(r *Router) { r.enableH2C = enable }
}

// WithServerTimeouts configures HTTP server timeouts used by Serve and
// ServeTLS.
//
//	r := rush.MustNew(rush.WithServerTimeouts(
//	    10*time.Second,  // ReadHeaderTimeout
//	    30*time.Second,  // ReadTimeout
//	    60*time.Second,  // WriteTimeout
//	    120*time.Second, // IdleTimeout
//	))
func WithServerTimeouts(readHeader, read, write, idle time.Duration) Option {
	return func(r *Router) {
		r.serverTimeouts = &serverTimeouts{
			readHeader: readHeader,
			read:       read,
			write:      write,
			idle:       idle,
		}
	}
}

// Serve starts the HTTP server on the given address, with h2c enabled when
// configured via WithH2C. WriteTimeout bounds WebSocket connections too;
// deployments that upgrade long-lived sockets should raise it via
// WithServerTimeouts.
//
//	r := rush.MustNew()
//	r.GET("/", func(c *rush.Context) { c.String(http.StatusOK, "hello") })
//	if err := r.Serve(":8080"); err != nil {
//	    log.Fatal(err)
//	}
func (r *Router) Serve(addr string) error {
	h := http.Handler(r)
	if r.enableH2C {
		h = h2c.NewHandler(h, &http2.Server{})
	}
	return r.newServer(addr, h).ListenAndServe()
}

// ServeTLS starts the HTTPS server; HTTP/2 is negotiated via ALPN.
func (r *Router) ServeTLS(addr, certFile, keyFile string) error {
	return r.newServer(addr, r).ListenAndServeTLS(certFile, keyFile)
}

func (r *Router) newServer(addr string, h http.Handler) *http.Server {
	timeouts := r.serverTimeouts
	if timeouts == nil {
		timeouts = defaultServerTimeouts()
	}
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: timeouts.readHeader,
		ReadTimeout:       timeouts.read,
		WriteTimeout:      timeouts.write,
		IdleTimeout:       timeouts.idle,
	}
}
