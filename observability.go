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
	"log/slog"
	"net/http"
)

// ObservabilityRecorder unifies request-level observability: metrics,
// request-scoped logging, and context enrichment. The router calls it around
// every request when one is installed via SetObservabilityRecorder.
//
// Implementations must be safe for concurrent use. The state value returned
// by OnRequestStart is handed back to OnRequestEnd unchanged, so recorders
// can carry per-request data (start time, counters) without touching the
// Context.
type ObservabilityRecorder interface {
	// OnRequestStart is called before routing. It may enrich the request
	// context (e.g. start a span) and returns opaque per-request state.
	OnRequestStart(ctx context.Context, req *http.Request) (context.Context, any)

	// OnRequestEnd is called after the response is complete. info exposes
	// the final status code and size; routePattern is the matched route
	// pattern or the "_not_found" sentinel.
	OnRequestEnd(ctx context.Context, state any, info ResponseInfo, routePattern string)

	// BuildRequestLogger returns the request-scoped logger attached to the
	// Context. Returning nil falls back to the router's base logger.
	BuildRequestLogger(ctx context.Context, req *http.Request, routePattern string) *slog.Logger
}
