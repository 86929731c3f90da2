package geotracking_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/EcoDeli/GeoTrack/internal/services/geotracking"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

type GeotrackingAPI struct {
	svc *geotracking.Service
}

func New(svc *geotracking.Service) *GeotrackingAPI {
	return &GeotrackingAPI{svc: svc}
}

func (a *GeotrackingAPI) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/deliveries/{deliveryID}/tracking/start", a.startTracking)
		r.Post("/deliveries/{deliveryID}/tracking/stop", a.stopTracking)
		r.Get("/deliveries/{deliveryID}/position", a.currentPosition)
		r.Get("/deliveries/{deliveryID}/history", a.history)
		r.Post("/couriers/{courierID}/position", a.updatePosition)
	})
}

type courierRequest struct {
	CourierID uint64 `json:"courierId"`
}

type sessionResponse struct {
	ID             uint64     `json:"id"`
	DeliveryID     uint64     `json:"deliveryId"`
	CourierID      uint64     `json:"courierId"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	Active         bool       `json:"active"`
	TotalDistanceM float64    `json:"totalDistanceM"`
	AvgSpeedKmh    float64    `json:"avgSpeedKmh"`
	MaxSpeedKmh    *float64   `json:"maxSpeedKmh,omitempty"`
}

type positionRequest struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	AccuracyM  float64    `json:"accuracyM"`
	RecordedAt *time.Time `json:"recordedAt,omitempty"`
	SpeedKmh   *float64   `json:"speedKmh,omitempty"`
	HeadingDeg *float64   `json:"headingDeg,omitempty"`
	AltitudeM  *float64   `json:"altitudeM,omitempty"`
}

type sampleResponse struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracyM"`
	RecordedAt time.Time `json:"recordedAt"`
	SpeedKmh   *float64  `json:"speedKmh,omitempty"`
	HeadingDeg *float64  `json:"headingDeg,omitempty"`
	AltitudeM  *float64  `json:"altitudeM,omitempty"`
}

func (a *GeotrackingAPI) startTracking(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := pathID(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req courierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
		return
	}

	session, err := a.svc.StartTracking(r.Context(), deliveryID, req.CourierID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (a *GeotrackingAPI) stopTracking(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := pathID(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req courierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
		return
	}

	session, err := a.svc.StopTracking(r.Context(), deliveryID, req.CourierID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (a *GeotrackingAPI) updatePosition(w http.ResponseWriter, r *http.Request) {
	courierID, err := pathID(r, "courierID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode body"))
		return
	}

	sample := models.LocationSample{
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		AccuracyM:  req.AccuracyM,
		SpeedKmh:   req.SpeedKmh,
		HeadingDeg: req.HeadingDeg,
		AltitudeM:  req.AltitudeM,
	}
	if req.RecordedAt != nil {
		sample.RecordedAt = *req.RecordedAt
	}

	if err := a.svc.UpdatePosition(r.Context(), courierID, sample); err != nil {
		writeDomainError(w, err)
		return
	}
	// 202: сэмпл принят; была ли активная сессия — курьеру знать не нужно.
	w.WriteHeader(http.StatusAccepted)
}

func (a *GeotrackingAPI) currentPosition(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := pathID(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ls, err := a.svc.CurrentPosition(r.Context(), deliveryID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if ls == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toSampleResponse(ls))
}

func (a *GeotrackingAPI) history(w http.ResponseWriter, r *http.Request) {
	deliveryID, err := pathID(r, "deliveryID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	from, err := queryTime(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	samples, err := a.svc.History(r.Context(), deliveryID, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]sampleResponse, 0, len(samples))
	for _, ls := range samples {
		out = append(out, toSampleResponse(ls))
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

func toSessionResponse(ts *models.TrackingSession) sessionResponse {
	return sessionResponse{
		ID:             ts.ID,
		DeliveryID:     ts.DeliveryID,
		CourierID:      ts.CourierID,
		StartedAt:      ts.StartedAt,
		EndedAt:        ts.EndedAt,
		Active:         ts.Active,
		TotalDistanceM: ts.TotalDistanceM,
		AvgSpeedKmh:    ts.AvgSpeedKmh,
		MaxSpeedKmh:    ts.MaxSpeedKmh,
	}
}

func toSampleResponse(ls *models.LocationSample) sampleResponse {
	return sampleResponse{
		Latitude:   ls.Latitude,
		Longitude:  ls.Longitude,
		AccuracyM:  ls.AccuracyM,
		RecordedAt: ls.RecordedAt,
		SpeedKmh:   ls.SpeedKmh,
		HeadingDeg: ls.HeadingDeg,
		AltitudeM:  ls.AltitudeM,
	}
}

func pathID(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", name)
	}
	return &t, nil
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geotracking.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, geotracking.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, geotracking.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, geotracking.ErrInvalid):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
