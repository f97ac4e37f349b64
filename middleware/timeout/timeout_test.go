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

package timeout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rush-http/rush"
)

func serve(r *rush.Router, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTimeoutProduces408(t *testing.T) {
	r := rush.MustNew()
	r.GET("/slow", New(25*time.Millisecond), func(c *rush.Context) {
		select {
		case <-c.Request.Context().Done():
		case <-time.After(time.Second):
		}
	})

	start := time.Now()
	w := serve(r, "/slow")
	require.Less(t, time.Since(start), 500*time.Millisecond)

	require.Equal(t, http.StatusRequestTimeout, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	inner, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TIMEOUT", inner["code"])
}

func TestFastHandlerUnaffected(t *testing.T) {
	r := rush.MustNew()
	r.GET("/fast", New(time.Second), func(c *rush.Context) {
		_ = c.String(http.StatusOK, "done")
	})

	w := serve(r, "/fast")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "done", w.Body.String())
}

func TestWrittenResponseNotOverridden(t *testing.T) {
	r := rush.MustNew()
	r.GET("/wrote", New(20*time.Millisecond), func(c *rush.Context) {
		_ = c.String(http.StatusOK, "partial")
		<-c.Request.Context().Done()
	})

	w := serve(r, "/wrote")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestOnlyAppliesToItsRoute(t *testing.T) {
	r := rush.MustNew()
	r.GET("/guarded", New(10*time.Millisecond), func(c *rush.Context) {
		<-c.Request.Context().Done()
	})
	r.GET("/open", func(c *rush.Context) {
		assert.Nil(t, c.Request.Context().Err())
		_ = c.String(http.StatusOK, "open")
	})

	assert.Equal(t, http.StatusRequestTimeout, serve(r, "/guarded").Code)
	assert.Equal(t, http.StatusOK, serve(r, "/open").Code)
}
