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
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(method, target string) (*Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	c := NewContext(&responseWriter{ResponseWriter: w}, req)
	return c, w
}

func TestContextParams(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")

	c.setParam("id", "42")
	c.setParam("name", "ada")

	assert.Equal(t, "42", c.Param("id"))
	assert.Equal(t, "ada", c.Param("name"))
	assert.Equal(t, "", c.Param("missing"))
	assert.Equal(t, map[string]string{"id": "42", "name": "ada"}, c.ParamMap())
}

func TestContextParamOverflow(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")

	for i := range 10 {
		c.setParam(string(rune('a'+i)), "v")
	}

	// First eight live in the arrays, the rest spill to the map.
	assert.Equal(t, int32(8), c.paramCount)
	assert.Len(t, c.Params, 2)
	assert.Equal(t, "v", c.Param("a"))
	assert.Equal(t, "v", c.Param("j"))
}

func TestContextQueryHelpers(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/search?q=go&limit=10&tag=a&tag=b")

	assert.Equal(t, "go", c.Query("q"))
	assert.Equal(t, "10", c.DefaultQuery("limit", "25"))
	assert.Equal(t, "25", c.DefaultQuery("offset", "25"))
	assert.Equal(t, []string{"a", "b"}, c.QueryValues()["tag"])
}

func TestContextState(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")

	_, found := c.Get("missing")
	assert.False(t, found)

	c.Set("user", "ada")
	v, found := c.Get("user")
	require.True(t, found)
	assert.Equal(t, "ada", v)
	assert.Equal(t, "ada", c.GetString("user"))

	c.Set("count", 7)
	assert.Equal(t, "", c.GetString("count"))
}

func TestContextWriters(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/")
	require.NoError(t, c.JSON(http.StatusCreated, H{"a": 1}))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"a":1}`, w.Body.String())

	c, w = newTestContext(http.MethodGet, "/")
	require.NoError(t, c.String(http.StatusOK, "hello"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, "hello", w.Body.String())

	c, w = newTestContext(http.MethodGet, "/")
	require.NoError(t, c.Stringf(http.StatusOK, "user %s has %d items", "ada", 3))
	assert.Equal(t, "user ada has 3 items", w.Body.String())

	c, w = newTestContext(http.MethodGet, "/")
	require.NoError(t, c.HTML(http.StatusOK, "<h1>hi</h1>"))
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	c, w = newTestContext(http.MethodGet, "/")
	require.NoError(t, c.Data(http.StatusOK, "", []byte{0xde, 0xad}))
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
}

func TestJSONEncodingFailureWritesNothing(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/")

	err := c.JSON(http.StatusOK, make(chan int))
	require.Error(t, err)
	assert.Empty(t, w.Body.String())
	assert.False(t, c.Written())
}

func TestRedirect(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/old")
	c.Redirect(http.StatusMovedPermanently, "/new/")

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/new/", w.Header().Get("Location"))
}

func TestErrorCollection(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")

	c.Error(errors.New("first"))
	c.Error(nil) // ignored
	c.Error(errors.New("second"))

	require.Len(t, c.Errors(), 2)
	assert.Equal(t, "first", c.Errors()[0].Error())
}

func TestContextResetWipesEverything(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/x?q=1")
	c.setParam("id", "1")
	c.Set("k", "v")
	c.SetRequestID("rid")
	c.Error(errors.New("e"))
	c.Status(http.StatusTeapot)
	c.Respond("body")

	c.reset()

	assert.Nil(t, c.Request)
	assert.Nil(t, c.Response)
	assert.Equal(t, int32(0), c.paramCount)
	assert.Equal(t, "", c.Param("id"))
	_, found := c.Get("k")
	assert.False(t, found)
	assert.Empty(t, c.RequestID())
	assert.Empty(t, c.Errors())
	assert.Zero(t, c.StatusCode())
}

func TestLoggerNeverNil(t *testing.T) {
	c, _ := newTestContext(http.MethodGet, "/")
	require.NotNil(t, c.Logger())
	// Logging through the no-op logger must not panic.
	c.Logger().Info("ignored")
}
