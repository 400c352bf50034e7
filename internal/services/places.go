package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"entitlement-api/internal/config"

	"googlemaps.github.io/maps"
)

// PlacesService wraps the Google Maps Platform calls (geocode, nearby search,
// place photos) with the read-through cache. Identical logical queries from
// different clients share one cached entry, so each distinct query costs at
// most one upstream call per TTL.
type PlacesService struct {
	client *maps.Client
	cache  *Cache

	geocodeTTL time.Duration
	nearbyTTL  time.Duration
	photoTTL   time.Duration
}

// NewPlacesService creates a new places service
func NewPlacesService(cache *Cache) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(config.AppConfig.GoogleMapsAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	return &PlacesService{
		client:     client,
		cache:      cache,
		geocodeTTL: time.Duration(config.AppConfig.GeocodeCacheTTL) * time.Second,
		nearbyTTL:  time.Duration(config.AppConfig.NearbyCacheTTL) * time.Second,
		photoTTL:   time.Duration(config.AppConfig.PhotoCacheTTL) * time.Second,
	}, nil
}

// Geocode resolves an address to coordinates. Geocoding results are nearly
// immutable, so they carry the longest TTL.
func (s *PlacesService) Geocode(ctx context.Context, address string, refresh bool) (json.RawMessage, error) {
	key := GeocodeCacheKey(address)
	if refresh {
		key = RefreshKey(key)
	}

	value, err := s.cache.WithCache(ctx, key, s.geocodeTTL, func() (string, error) {
		results, err := s.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
		if err != nil {
			return "", fmt.Errorf("%w: geocode: %v", ErrProviderUnavailable, err)
		}
		data, err := json.Marshal(results)
		if err != nil {
			return "", fmt.Errorf("failed to serialize geocode results: %w", err)
		}
		return string(data), nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// Nearby searches for places around a coordinate
func (s *PlacesService) Nearby(ctx context.Context, lat, lng float64, radius uint, keyword string, openNow, refresh bool) (json.RawMessage, error) {
	key := NearbyCacheKey(lat, lng, radius, keyword, openNow)
	if refresh {
		key = RefreshKey(key)
	}

	value, err := s.cache.WithCache(ctx, key, s.nearbyTTL, func() (string, error) {
		resp, err := s.client.NearbySearch(ctx, &maps.NearbySearchRequest{
			Location: &maps.LatLng{Lat: lat, Lng: lng},
			Radius:   radius,
			Keyword:  keyword,
			OpenNow:  openNow,
		})
		if err != nil {
			return "", fmt.Errorf("%w: nearby search: %v", ErrProviderUnavailable, err)
		}
		data, err := json.Marshal(resp.Results)
		if err != nil {
			return "", fmt.Errorf("failed to serialize nearby results: %w", err)
		}
		return string(data), nil
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(value), nil
}

// placePhoto is the cached representation of a fetched photo
type placePhoto struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"` // base64
}

// Photo fetches a place photo by reference. The decoded bytes and content
// type are returned; the cache holds them base64-encoded.
func (s *PlacesService) Photo(ctx context.Context, photoReference string, maxWidth uint, refresh bool) ([]byte, string, error) {
	key := PhotoCacheKey(photoReference, maxWidth)
	if refresh {
		key = RefreshKey(key)
	}

	value, err := s.cache.WithCache(ctx, key, s.photoTTL, func() (string, error) {
		resp, err := s.client.PlacePhoto(ctx, &maps.PlacePhotoRequest{
			PhotoReference: photoReference,
			MaxWidth:       maxWidth,
		})
		if err != nil {
			return "", fmt.Errorf("%w: place photo: %v", ErrProviderUnavailable, err)
		}
		defer resp.Data.Close()

		raw, err := io.ReadAll(resp.Data)
		if err != nil {
			return "", fmt.Errorf("%w: read photo: %v", ErrProviderUnavailable, err)
		}

		data, err := json.Marshal(placePhoto{
			ContentType: resp.ContentType,
			Data:        base64.StdEncoding.EncodeToString(raw),
		})
		if err != nil {
			return "", fmt.Errorf("failed to serialize photo: %w", err)
		}
		return string(data), nil
	})
	if err != nil {
		return nil, "", err
	}

	var photo placePhoto
	if err := json.Unmarshal([]byte(value), &photo); err != nil {
		return nil, "", fmt.Errorf("failed to parse cached photo: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(photo.Data)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode cached photo: %w", err)
	}
	return raw, photo.ContentType, nil
}
