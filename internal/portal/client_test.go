package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruiting-ats/internal/cache"
	httpclient "recruiting-ats/pkg/http"
)

func TestSearchProfilesDisabled(t *testing.T) {
	c := NewClient("", "", 0, nil)
	assert.False(t, c.Enabled())
	_, err := c.SearchProfiles(context.Background(), Query{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestSearchProfilesUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/profiles", r.URL.Path)
		assert.Equal(t, "Go,SQL", r.URL.Query().Get("skills"))
		assert.Equal(t, "Hamburg", r.URL.Query().Get("city"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"profiles": []Profile{{ID: "p1", Name: "Lea Vogel", Skills: []string{"Go"}, City: "Hamburg"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", 0, cache.New("portal-test", time.Minute, 0))
	ctx := context.Background()
	q := Query{Skills: []string{"Go", "SQL"}, City: "Hamburg"}

	res, err := c.SearchProfiles(ctx, q)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "Lea Vogel", res[0].Name)

	_, err = c.SearchProfiles(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call is served from cache")

	c.InvalidateCache(ctx)
	_, err = c.SearchProfiles(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchProfilesPropagatesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 0, nil).WithHTTPClient(
		httpclient.NewClient(time.Second, 0).WithRetry(httpclient.RetryConfig{MaxRetries: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond, Multiplier: 1}))
	_, err := c.SearchProfiles(context.Background(), Query{Skills: []string{"Go"}})
	require.Error(t, err)
	assert.True(t, httpclient.IsRetryableStatus(err))
}
