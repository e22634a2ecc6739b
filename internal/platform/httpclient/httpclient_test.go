package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoJSON_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/echo", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "tracker-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "yes", r.Header.Get("X-Extra"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"got": in["name"]})
	}))
	defer srv.Close()

	c, err := New(srv.URL+"/", 0, WithUserAgent("tracker-test"))
	require.NoError(t, err)

	var out map[string]string
	err = c.DoJSON(context.Background(), http.MethodPost, "echo", map[string]string{"X-Extra": "yes"}, map[string]string{"name": "rex"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "rex", out["got"])
}

func TestDoJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "try later", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL, 0)
	require.NoError(t, err)

	err = c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "try later", se.Body)
	assert.True(t, se.Temporary())
}

func TestDoJSON_RelativePathNeedsBaseURL(t *testing.T) {
	c, err := New("", 0)
	require.NoError(t, err)
	assert.Error(t, c.DoJSON(context.Background(), http.MethodGet, "/x", nil, nil, nil))

	_, err = New("not a url", 0)
	assert.Error(t, err)
}
