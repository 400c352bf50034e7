package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"entitlement-api/internal/config"
)

const ticketmasterBaseURL = "https://app.ticketmaster.com/discovery/v2"

// EventSearchParams are the parameters of an event search. Every field feeds
// the cache key.
type EventSearchParams struct {
	Lat       float64
	Lng       float64
	Radius    int
	Keyword   string
	StartDate string
	EndDate   string
	Size      int
}

// EventsService searches the Ticketmaster Discovery API behind the
// read-through cache. The provider response body is cached verbatim.
type EventsService struct {
	httpClient *http.Client
	apiKey     string
	cache      *Cache
	ttl        time.Duration

	// Overridable for tests
	BaseURL string
}

// NewEventsService creates a new events service
func NewEventsService(cache *Cache) *EventsService {
	return &EventsService{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		apiKey:  config.AppConfig.TicketmasterAPIKey,
		cache:   cache,
		ttl:     time.Duration(config.AppConfig.EventsCacheTTL) * time.Second,
		BaseURL: ticketmasterBaseURL,
	}
}

// Search finds events near a coordinate
func (s *EventsService) Search(ctx context.Context, params EventSearchParams, refresh bool) ([]byte, error) {
	key := EventsCacheKey(params.Lat, params.Lng, params.Radius, params.Keyword, params.StartDate, params.EndDate, params.Size)
	if refresh {
		key = RefreshKey(key)
	}

	value, err := s.cache.WithCache(ctx, key, s.ttl, func() (string, error) {
		body, err := s.fetch(ctx, params)
		if err != nil {
			return "", err
		}
		return string(body), nil
	})
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *EventsService) fetch(ctx context.Context, params EventSearchParams) ([]byte, error) {
	query := url.Values{}
	query.Set("apikey", s.apiKey)
	query.Set("latlong", fmt.Sprintf("%f,%f", params.Lat, params.Lng))
	query.Set("unit", "miles")
	if params.Radius > 0 {
		query.Set("radius", strconv.Itoa(params.Radius))
	}
	if params.Keyword != "" {
		query.Set("keyword", params.Keyword)
	}
	if params.StartDate != "" {
		query.Set("startDateTime", params.StartDate)
	}
	if params.EndDate != "" {
		query.Set("endDateTime", params.EndDate)
	}
	if params.Size > 0 {
		query.Set("size", strconv.Itoa(params.Size))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/events.json?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create event search request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: event search: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read event search response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: event search returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	return body, nil
}
