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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundedRetention(t *testing.T) {
	p := newContextPool(2)

	a, b, c := p.acquire(), p.acquire(), p.acquire()
	p.release(a)
	p.release(b)
	p.release(c) // over capacity: dropped for the GC

	stats := p.stats()
	assert.Equal(t, uint64(3), stats.Gets)
	assert.Equal(t, uint64(3), stats.Puts)
	assert.Equal(t, uint64(1), stats.Drops)
	assert.Len(t, p.free, 2)
}

func TestPoolReusesReleasedContexts(t *testing.T) {
	p := newContextPool(4)

	c1 := p.acquire()
	c1.setParam("id", "1")
	p.release(c1)

	c2 := p.acquire()
	require.Same(t, c1, c2)
	// Released state is fully wiped before reuse.
	assert.Equal(t, "", c2.Param("id"))
	assert.Equal(t, int32(0), c2.paramCount)

	stats := p.stats()
	assert.Equal(t, uint64(1), stats.Hits)
}
