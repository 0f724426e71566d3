// README: Ride lifecycle handlers (post, list, edit, delete, accept, confirm, estimate).
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rideshare/internal/http/middleware"
	"rideshare/internal/modules/ride"
	"rideshare/internal/types"
)

// TravelEstimator is satisfied by maps.RouteService.
type TravelEstimator interface {
	GetTravelEstimate(ctx context.Context, origin, destination string) (time.Duration, string, error)
}

type RideHandler struct {
	rides     *ride.Service
	estimator TravelEstimator
	loc       *time.Location
}

// NewRideHandler renders and parses dateTime in loc. estimator may be nil.
func NewRideHandler(svc *ride.Service, estimator TravelEstimator, loc *time.Location) *RideHandler {
	return &RideHandler{rides: svc, estimator: estimator, loc: loc}
}

type rideResponse struct {
	ID string `json:"id"`
	ride.Record
}

func toResponse(r *ride.Ride, loc *time.Location) rideResponse {
	return rideResponse{ID: string(r.ID), Record: ride.ToRecord(r, loc)}
}

func toResponses(rides []*ride.Ride, loc *time.Location) []rideResponse {
	out := make([]rideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toResponse(r, loc))
	}
	return out
}

func (h *RideHandler) render(r *ride.Ride) rideResponse { return toResponse(r, h.loc) }

type createRideReq struct {
	RideType string `json:"rideType"`
	From     string `json:"from"`
	To       string `json:"to"`
	DateTime string `json:"dateTime"`
}

type editRideReq struct {
	From     string `json:"from"`
	To       string `json:"to"`
	DateTime string `json:"dateTime"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	at, err := ride.ParseDateTime(req.DateTime, h.loc)
	if err != nil {
		writeRideError(c, err)
		return
	}
	r, err := h.rides.Post(c.Request.Context(), ride.PostCommand{
		Type:        ride.Type(req.RideType),
		AuthorID:    middleware.CallerUID(c),
		AuthorEmail: middleware.CallerEmail(c),
		From:        req.From,
		To:          req.To,
		ScheduledAt: at,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, h.render(r))
}

func (h *RideHandler) List(c *gin.Context) {
	v, err := ride.ParseView(c.Query("view"))
	if err != nil {
		writeRideError(c, err)
		return
	}
	rides, err := h.rides.List(c.Request.Context(), middleware.CallerUID(c), v)
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"view": v, "rides": toResponses(rides, h.loc)})
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	r, err := h.rides.Lookup(c.Request.Context(), id, middleware.CallerUID(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, h.render(r))
}

func (h *RideHandler) Update(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	var req editRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	at, err := ride.ParseDateTime(req.DateTime, h.loc)
	if err != nil {
		writeRideError(c, err)
		return
	}
	r, err := h.rides.Edit(c.Request.Context(), ride.EditCommand{
		RideID:      id,
		EditorID:    middleware.CallerUID(c),
		From:        req.From,
		To:          req.To,
		ScheduledAt: at,
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, h.render(r))
}

func (h *RideHandler) Delete(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	err := h.rides.Delete(c.Request.Context(), ride.DeleteCommand{RideID: id, RequesterID: middleware.CallerUID(c)})
	if err != nil {
		writeRideError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RideHandler) Accept(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	r, err := h.rides.Accept(c.Request.Context(), ride.AcceptCommand{
		RideID:        id,
		AccepterID:    middleware.CallerUID(c),
		AccepterEmail: middleware.CallerEmail(c),
	})
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, h.render(r))
}

type confirmResponse struct {
	Ride      rideResponse `json:"ride"`
	Finalized bool         `json:"finalized"`
	Warning   string       `json:"warning,omitempty"`
}

// Confirm answers 200 even when finalization left a ledger warning; the ride is gone either way.
func (h *RideHandler) Confirm(c *gin.Context) {
	id, ok := rideID(c)
	if !ok {
		return
	}
	res, err := h.rides.Confirm(c.Request.Context(), ride.ConfirmCommand{RideID: id, ConfirmerID: middleware.CallerUID(c)})
	if err != nil {
		writeRideError(c, err)
		return
	}
	out := confirmResponse{Ride: h.render(res.Ride), Finalized: res.Finalized}
	if res.Warning != nil {
		out.Warning = res.Warning.Error()
	}
	writeJSON(c, http.StatusOK, out)
}

func (h *RideHandler) Estimate(c *gin.Context) {
	if h.estimator == nil {
		writeError(c, http.StatusServiceUnavailable, "travel estimates are not configured")
		return
	}
	id, ok := rideID(c)
	if !ok {
		return
	}
	r, err := h.rides.Lookup(c.Request.Context(), id, middleware.CallerUID(c))
	if err != nil {
		writeRideError(c, err)
		return
	}
	d, distance, err := h.estimator.GetTravelEstimate(c.Request.Context(), r.From, r.To)
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusBadGateway, "travel estimate unavailable")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"ride_id":          r.ID,
		"duration_minutes": int(d.Round(time.Minute) / time.Minute),
		"distance":         distance,
	})
}

func rideID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return "", false
	}
	return types.ID(id), true
}
