package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/airquality"
	"github.com/kilamate/kilamate/internal/api/models"
	"github.com/kilamate/kilamate/internal/api/response"
	"github.com/kilamate/kilamate/internal/aqi"
	"github.com/kilamate/kilamate/internal/geolocation"
)

// AirQualitySource returns scored air quality snapshots.
type AirQualitySource interface {
	GetSnapshot(ctx context.Context, lat, lon float64) (*airquality.Snapshot, error)
}

// AirQualityHandler handles air quality endpoints.
type AirQualityHandler struct {
	source AirQualitySource
	logger zerolog.Logger
}

// NewAirQualityHandler creates a new AirQualityHandler.
func NewAirQualityHandler(source AirQualitySource, logger zerolog.Logger) *AirQualityHandler {
	return &AirQualityHandler{source: source, logger: logger}
}

// GetAirQuality handles GET /v1/air-quality?lat=&lon=.
func (h *AirQualityHandler) GetAirQuality(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, lon, err := geolocation.ParseCoordinates(q.Get("lat"), q.Get("lon"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	snap, err := h.source.GetSnapshot(r.Context(), lat, lon)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, snap)
}

// GetBands handles GET /v1/aqi/bands.
func (h *AirQualityHandler) GetBands(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.AQIScale{
		MaxIndex: aqi.MaxIndex,
		Bands:    aqi.Bands,
	})
}
