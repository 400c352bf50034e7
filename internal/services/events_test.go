package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEventsService(baseURL string) *EventsService {
	return &EventsService{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiKey:     "tm-test-key",
		cache:      NewCache(newMemCacheStore()),
		ttl:        time.Hour,
		BaseURL:    baseURL,
	}
}

func TestEventsSearchCachesProviderResponse(t *testing.T) {
	var hits int
	var lastQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		lastQuery = r.URL.RawQuery
		fmt.Fprint(w, `{"_embedded":{"events":[]}}`)
	}))
	defer server.Close()

	svc := newTestEventsService(server.URL)
	params := EventSearchParams{Lat: 40.7, Lng: -74.0, Radius: 25, Keyword: "music", Size: 20}

	body, err := svc.Search(context.Background(), params, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"_embedded":{"events":[]}}`, string(body))

	_, err = svc.Search(context.Background(), params, false)
	require.NoError(t, err)
	assert.Equal(t, 1, hits, "the second identical search must come from cache")

	assert.Contains(t, lastQuery, "apikey=tm-test-key")
	assert.Contains(t, lastQuery, "keyword=music")
	assert.Contains(t, lastQuery, "unit=miles")
}

func TestEventsSearchRefreshBypassesCache(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `{"_embedded":{"events":[]}}`)
	}))
	defer server.Close()

	svc := newTestEventsService(server.URL)
	params := EventSearchParams{Lat: 40.7, Lng: -74.0, Radius: 25}

	_, err := svc.Search(context.Background(), params, false)
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), params, true)
	require.NoError(t, err)
	assert.Equal(t, 2, hits)
}

func TestEventsSearchProviderErrorNotCached(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	svc := newTestEventsService(server.URL)
	params := EventSearchParams{Lat: 40.7, Lng: -74.0}

	_, err := svc.Search(context.Background(), params, false)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	_, err = svc.Search(context.Background(), params, false)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, 2, hits, "failures must not poison the cache")
}
