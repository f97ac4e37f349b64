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

import "fmt"

// Mount merges every route of sub under the given prefix. The sub-router's
// global middleware is prepended to each merged route's chain, so its
// behavior is preserved; the parent's global middleware applies as usual at
// dispatch.
//
// Mounting copies routes: later registrations on sub are not reflected in
// the parent. Normalization and duplicate detection re-run against the
// parent's route set, so a collision fails the Mount call with
// ErrDuplicateRoute and leaves the parent unchanged up to the conflicting
// route.
//
//	admin := rush.MustNew()
//	admin.GET("/stats", statsHandler)
//	r.Mount("/admin", admin) // GET /admin/stats
func (r *Router) Mount(prefix string, sub *Router) error {
	if sub == nil {
		return fmt.Errorf("%w: nil sub-router", ErrInvalidPattern)
	}

	sub.mu.RLock()
	subGlobals := make([]HandlerFunc, len(sub.middleware))
	copy(subGlobals, sub.middleware)

	type pending struct {
		method   string
		pattern  string
		handlers []HandlerFunc
	}
	var merged []pending
	sub.tree.each(func(route *Route) {
		chain := make([]HandlerFunc, 0, len(subGlobals)+len(route.handlers))
		chain = append(chain, subGlobals...)
		chain = append(chain, route.handlers...)
		merged = append(merged, pending{
			method:   route.Method,
			pattern:  joinPaths(prefix, route.Pattern),
			handlers: chain,
		})
	})
	sub.mu.RUnlock()

	for _, p := range merged {
		if _, err := r.register(p.method, p.pattern, p.handlers); err != nil {
			return fmt.Errorf("mounting %s %s: %w", p.method, p.pattern, err)
		}
	}
	return nil
}
