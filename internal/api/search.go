package api

import (
	"net/http"
	"strconv"

	"entitlement-api/internal/response"
	"entitlement-api/internal/services"

	"github.com/gin-gonic/gin"
)

// refreshFlag reads the force-bypass flag; a refresh always calls the
// upstream provider regardless of what sits in the cache
func refreshFlag(c *gin.Context) bool {
	refresh, _ := strconv.ParseBool(c.DefaultQuery("refresh", "false"))
	return refresh
}

// Geocode resolves an address to coordinates
// GET /api/search/geocode?address=...
func (h *Handlers) Geocode(c *gin.Context) {
	if h.places == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeProviderUnavailable, "place search is not configured")
		return
	}

	address := c.Query("address")
	if address == "" {
		response.ValidationError(c, "address is required")
		return
	}

	results, err := h.places.Geocode(c.Request.Context(), address, refreshFlag(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, results)
}

// Nearby searches for places around a coordinate
// GET /api/search/nearby?lat=..&lng=..&radius=..&keyword=..&open_now=..
func (h *Handlers) Nearby(c *gin.Context) {
	if h.places == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeProviderUnavailable, "place search is not configured")
		return
	}

	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil {
		response.ValidationError(c, "lat and lng are required")
		return
	}

	radius, err := strconv.ParseUint(c.DefaultQuery("radius", "1500"), 10, 32)
	if err != nil || radius == 0 {
		response.ValidationError(c, "radius must be a positive integer")
		return
	}

	openNow, _ := strconv.ParseBool(c.DefaultQuery("open_now", "false"))

	results, err := h.places.Nearby(c.Request.Context(), lat, lng, uint(radius), c.Query("keyword"), openNow, refreshFlag(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	response.Success(c, results)
}

// Photo fetches a place photo by reference
// GET /api/search/photo?ref=..&max_width=..
func (h *Handlers) Photo(c *gin.Context) {
	if h.places == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeProviderUnavailable, "place search is not configured")
		return
	}

	ref := c.Query("ref")
	if ref == "" {
		response.ValidationError(c, "ref is required")
		return
	}

	maxWidth, err := strconv.ParseUint(c.DefaultQuery("max_width", "400"), 10, 32)
	if err != nil || maxWidth == 0 {
		response.ValidationError(c, "max_width must be a positive integer")
		return
	}

	data, contentType, err := h.places.Photo(c.Request.Context(), ref, uint(maxWidth), refreshFlag(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.Data(http.StatusOK, contentType, data)
}

// SearchEvents finds events near a coordinate
// GET /api/search/events?lat=..&lng=..&radius=..&keyword=..&start=..&end=..&size=..
func (h *Handlers) SearchEvents(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr != nil || lngErr != nil {
		response.ValidationError(c, "lat and lng are required")
		return
	}

	radius, _ := strconv.Atoi(c.DefaultQuery("radius", "25"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	params := services.EventSearchParams{
		Lat:       lat,
		Lng:       lng,
		Radius:    radius,
		Keyword:   c.Query("keyword"),
		StartDate: c.Query("start"),
		EndDate:   c.Query("end"),
		Size:      size,
	}

	body, err := h.events.Search(c.Request.Context(), params, refreshFlag(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}
