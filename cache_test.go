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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStoresHitsAndMisses(t *testing.T) {
	r := MustNew()
	r.GET("/users/:id", noopHandler)

	require.NotNil(t, r.Find(http.MethodGet, "/users/42"))
	assert.Nil(t, r.Find(http.MethodGet, "/missing"))

	// Both the hit and the miss are memoized.
	assert.Equal(t, 2, r.CacheLen())

	// Repeated lookups are served from the cache without growing it.
	require.NotNil(t, r.Find(http.MethodGet, "/users/42"))
	assert.Nil(t, r.Find(http.MethodGet, "/missing"))
	assert.Equal(t, 2, r.CacheLen())
}

func TestCachedParamsAreCorrect(t *testing.T) {
	r := MustNew()
	r.GET("/users/:id", noopHandler)

	first := r.Find(http.MethodGet, "/users/1")
	second := r.Find(http.MethodGet, "/users/1") // cached
	other := r.Find(http.MethodGet, "/users/2")  // distinct key

	require.NotNil(t, first)
	require.NotNil(t, second)
	require.NotNil(t, other)
	assert.Equal(t, "1", first.Params["id"])
	assert.Equal(t, "1", second.Params["id"])
	assert.Equal(t, "2", other.Params["id"])
}

func TestCacheInvalidatedOnRegistration(t *testing.T) {
	r := MustNew()
	r.GET("/a", noopHandler)

	// Memoize a miss for /b, then register it.
	assert.Nil(t, r.Find(http.MethodGet, "/b"))
	r.GET("/b", noopHandler)

	// The stale negative entry must not survive the mutation.
	assert.NotNil(t, r.Find(http.MethodGet, "/b"))
}

func TestCacheInvalidatedOnClear(t *testing.T) {
	r := MustNew()
	r.GET("/a", noopHandler)
	require.NotNil(t, r.Find(http.MethodGet, "/a"))

	r.Clear()

	assert.Nil(t, r.Find(http.MethodGet, "/a"))
}

func TestCacheEvictsOlderHalf(t *testing.T) {
	r := MustNew(WithRouteCacheSize(4))
	r.GET("/users/:id", noopHandler)

	for i := range 4 {
		r.Find(http.MethodGet, fmt.Sprintf("/users/%d", i))
	}
	require.Equal(t, 4, r.CacheLen())

	// The fifth distinct lookup triggers eviction of the older half.
	r.Find(http.MethodGet, "/users/4")
	assert.Equal(t, 3, r.CacheLen())

	// Evicted entries are simply recomputed.
	match := r.Find(http.MethodGet, "/users/0")
	require.NotNil(t, match)
	assert.Equal(t, "0", match.Params["id"])
}

func TestConcurrentLookupsAndRegistrations(t *testing.T) {
	r := MustNew()
	r.GET("/stable", noopHandler)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := range 200 {
				assert.NotNil(t, r.Find(http.MethodGet, "/stable"))
				r.Find(http.MethodGet, fmt.Sprintf("/volatile/%d/%d", n, j))
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 50 {
			_, err := r.Handle(http.MethodGet, fmt.Sprintf("/generated/%d", i), noopHandler)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	// Every registered route is observable after the dust settles.
	for i := range 50 {
		assert.NotNil(t, r.Find(http.MethodGet, fmt.Sprintf("/generated/%d", i)))
	}
}
