// Package handler provides HTTP handlers for the Kilamate API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/kilamate/kilamate/internal/airquality"
	"github.com/kilamate/kilamate/internal/api/middleware"
	"github.com/kilamate/kilamate/internal/api/models"
	"github.com/kilamate/kilamate/internal/api/response"
	"github.com/kilamate/kilamate/internal/geolocation"
	"github.com/kilamate/kilamate/internal/weather"
)

type locationProblem struct {
	err    error
	typ    string
	title  string
	status int
}

var locationProblems = []locationProblem{
	{geolocation.ErrPermissionDenied, models.ProblemTypeLocationDenied, "Location permission denied", http.StatusForbidden},
	{geolocation.ErrPositionUnavailable, models.ProblemTypeLocationUnavailable, "Location unavailable", http.StatusUnprocessableEntity},
	{geolocation.ErrTimeout, models.ProblemTypeLocationTimeout, "Location timeout", http.StatusUnprocessableEntity},
	{geolocation.ErrUnsupported, models.ProblemTypeLocationUnsupported, "Geolocation unsupported", http.StatusUnprocessableEntity},
	{geolocation.ErrUnknown, models.ProblemTypeLocationUnknown, "Location error", http.StatusUnprocessableEntity},
	{geolocation.ErrLocationRequired, models.ProblemTypeLocationRequired, "Location required", http.StatusBadRequest},
}

// writeError maps a service error onto a problem response. Errors without a
// mapping are logged and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	for _, lp := range locationProblems {
		if errors.Is(err, lp.err) {
			problem := models.NewProblem(lp.typ, lp.title, lp.status, middleware.GetRequestID(r.Context()))
			problem.Detail = geolocation.Message(err)
			response.Error(w, r, problem)
			return
		}
	}

	switch {
	case errors.Is(err, geolocation.ErrInvalidCoordinates),
		errors.Is(err, weather.ErrInvalidCoordinates),
		errors.Is(err, airquality.ErrInvalidCoordinates):
		response.BadRequest(w, r, geolocation.Message(geolocation.ErrInvalidCoordinates), []models.FieldError{
			{Field: "lat", Message: "must be a number between -90 and 90"},
			{Field: "lon", Message: "must be a number between -180 and 180"},
		})
	case errors.Is(err, weather.ErrProviderUnavailable):
		response.ServiceUnavailable(w, r, "weather data is temporarily unavailable")
	case errors.Is(err, airquality.ErrProviderUnavailable):
		response.ServiceUnavailable(w, r, "air quality data is temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		response.ServiceUnavailable(w, r, "upstream request timed out")
	default:
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

// positionQuery reads the client-reported location from the query string.
func positionQuery(r *http.Request) geolocation.Query {
	q := r.URL.Query()
	return geolocation.Query{
		Lat:      q.Get("lat"),
		Lon:      q.Get("lon"),
		GeoError: q.Get("geoError"),
		Language: q.Get("lang"),
	}
}
