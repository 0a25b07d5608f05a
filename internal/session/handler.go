package session

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/gustavodarosa/KidGo/internal/location"
	"github.com/gustavodarosa/KidGo/internal/places"
	"github.com/gustavodarosa/KidGo/pkg/common"
	"github.com/gustavodarosa/KidGo/pkg/geo"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/gustavodarosa/KidGo/pkg/middleware"
	"github.com/gustavodarosa/KidGo/pkg/validation"
	ws "github.com/gustavodarosa/KidGo/pkg/websocket"
	"go.uber.org/zap"
)

const snapshotTimeout = 2 * time.Second

// Handler handles HTTP and websocket requests for pipeline sessions
type Handler struct {
	manager  *Manager
	hub      *ws.Hub
	upgrader *websocket.Upgrader
	timeout  time.Duration
}

// NewHandler creates a handler and registers the inbound websocket messages
// it understands on hub.
func NewHandler(manager *Manager, hub *ws.Hub, upgrader *websocket.Upgrader, requestTimeout time.Duration) *Handler {
	h := &Handler{
		manager:  manager,
		hub:      hub,
		upgrader: upgrader,
		timeout:  requestTimeout,
	}
	hub.RegisterHandler(MessageMapReady, h.onMapReady)
	hub.RegisterHandler(MessageLocationReport, h.onLocationReport)
	return h
}

// RegisterRoutes registers session routes. The event stream is kept out of
// the request timeout; extra middleware only wraps the REST routes.
func (h *Handler) RegisterRoutes(r *gin.Engine, extra ...gin.HandlerFunc) {
	sessions := r.Group("/api/v1/sessions")
	sessions.GET("/:id/events", middleware.SessionID("id"), h.Events)

	api := sessions.Group("")
	api.Use(middleware.RequestTimeout(h.timeout))
	api.Use(middleware.SessionID("id"))
	api.Use(extra...)
	{
		api.POST("", h.Create)
		api.GET("/:id", h.Get)
		api.DELETE("/:id", h.Close)
		api.POST("/:id/location", h.AcquireLocation)
		api.POST("/:id/location/report", h.ReportLocation)
		api.POST("/:id/fields/:field/focus", h.Focus)
		api.POST("/:id/fields/:field/search", h.Search)
		api.POST("/:id/fields/:field/retry", h.RetrySearch)
		api.POST("/:id/fields/:field/select", h.Select)
		api.POST("/:id/fields/:field/abandon", h.Abandon)
		api.POST("/:id/route/retry", h.RetryRoute)
		api.POST("/:id/map/ready", h.MapReady)
		api.POST("/:id/confirm", h.Confirm)
	}
}

// SearchRequest is a keystroke in a search field.
type SearchRequest struct {
	Query string `json:"query" binding:"max=200"`
}

// SelectRequest picks one of the field's suggestions.
type SelectRequest struct {
	PlaceID string `json:"place_id" binding:"required"`
}

// ConfirmRequest names the children riding and confirms their car seats.
type ConfirmRequest struct {
	ChildIDs         []string `json:"child_ids" validate:"required,min=1,unique,dive,required,max=64"`
	CarSeats         []string `json:"car_seats" validate:"omitempty,dive,oneof=infant convertible booster"`
	CarSeatConfirmed bool     `json:"car_seat_confirmed" validate:"required"`
}

func (r ConfirmRequest) riders() Riders {
	return Riders{
		ChildIDs:         r.ChildIDs,
		CarSeats:         r.CarSeats,
		CarSeatConfirmed: r.CarSeatConfirmed,
	}
}

// LocationReportRequest carries a device update from the client.
type LocationReportRequest struct {
	PermissionGranted *bool    `json:"permission_granted"`
	ServicesEnabled   *bool    `json:"services_enabled"`
	Latitude          *float64 `json:"latitude" validate:"required_with=Longitude,omitempty,latitude"`
	Longitude         *float64 `json:"longitude" validate:"required_with=Latitude,omitempty,longitude"`
}

func (r LocationReportRequest) report() location.Report {
	out := location.Report{
		PermissionGranted: r.PermissionGranted,
		ServicesEnabled:   r.ServicesEnabled,
	}
	if r.Latitude != nil && r.Longitude != nil {
		out.Coordinate = &geo.Coordinate{Latitude: *r.Latitude, Longitude: *r.Longitude}
	}
	return out
}

// Create opens a session
func (h *Handler) Create(c *gin.Context) {
	s := h.manager.Create(c.Request.Context())

	snap, err := s.Snapshot(c.Request.Context())
	if h.fail(c, err) {
		return
	}
	common.CreatedResponse(c, snap)
}

// Get returns the session snapshot
func (h *Handler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, err := s.Snapshot(c.Request.Context())
	if h.fail(c, err) {
		return
	}
	common.SuccessResponse(c, snap)
}

// Close ends the session without a ride
func (h *Handler) Close(c *gin.Context) {
	if h.fail(c, h.manager.Close(c.Request.Context(), c.Param("id"))) {
		return
	}
	common.SuccessResponse(c, gin.H{"closed": true})
}

// AcquireLocation starts a device location acquisition
func (h *Handler) AcquireLocation(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if h.fail(c, s.Acquire(c.Request.Context())) {
		return
	}
	common.AcceptedResponse(c, gin.H{"status": location.StatusRequesting})
}

// ReportLocation records a device update sent over HTTP
func (h *Handler) ReportLocation(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req LocationReportRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		common.AppErrorResponse(c, common.NewValidationError(err.Error()))
		return
	}
	if h.fail(c, s.Report(req.report())) {
		return
	}
	common.AcceptedResponse(c, gin.H{"reported": true})
}

// Focus opens the billing interaction for a field
func (h *Handler) Focus(c *gin.Context) {
	s, field, ok := h.sessionField(c)
	if !ok {
		return
	}
	token, err := s.Focus(c.Request.Context(), field)
	if h.fail(c, err) {
		return
	}
	common.SuccessResponse(c, token)
}

// Search records a keystroke; suggestions arrive on the event stream
func (h *Handler) Search(c *gin.Context) {
	s, field, ok := h.sessionField(c)
	if !ok {
		return
	}
	var req SearchRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if h.fail(c, s.Search(c.Request.Context(), field, req.Query)) {
		return
	}
	common.AcceptedResponse(c, gin.H{"field": field, "query": req.Query})
}

// RetrySearch reissues the field's last failed search
func (h *Handler) RetrySearch(c *gin.Context) {
	s, field, ok := h.sessionField(c)
	if !ok {
		return
	}
	if h.fail(c, s.RetrySearch(c.Request.Context(), field)) {
		return
	}
	common.AcceptedResponse(c, gin.H{"field": field})
}

// Select resolves a suggestion; the result arrives on the event stream
func (h *Handler) Select(c *gin.Context) {
	s, field, ok := h.sessionField(c)
	if !ok {
		return
	}
	var req SelectRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if h.fail(c, s.Select(c.Request.Context(), field, req.PlaceID)) {
		return
	}
	common.AcceptedResponse(c, gin.H{"field": field, "place_id": req.PlaceID})
}

// Abandon ends the field's interaction without a selection
func (h *Handler) Abandon(c *gin.Context) {
	s, field, ok := h.sessionField(c)
	if !ok {
		return
	}
	if h.fail(c, s.Abandon(c.Request.Context(), field)) {
		return
	}
	common.SuccessResponse(c, gin.H{"field": field})
}

// RetryRoute reissues a failed route fetch
func (h *Handler) RetryRoute(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if h.fail(c, s.RetryRoute(c.Request.Context())) {
		return
	}
	common.AcceptedResponse(c, gin.H{"retrying": true})
}

// MapReady records that the client map can render
func (h *Handler) MapReady(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if h.fail(c, s.MapReady(c.Request.Context())) {
		return
	}
	common.AcceptedResponse(c, gin.H{"ready": true})
}

// Confirm books the quoted route for the selected children and ends the session
func (h *Handler) Confirm(c *gin.Context) {
	var req ConfirmRequest
	if !common.BindJSON(c, &req) {
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		common.AppErrorResponse(c, common.NewValidationError(err.Error()))
		return
	}
	ride, err := h.manager.Confirm(c.Request.Context(), c.Param("id"), req.riders())
	if h.fail(c, err) {
		return
	}
	common.SuccessResponse(c, ride)
}

// Events upgrades to a websocket streaming the session's events
func (h *Handler) Events(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	ws.ServeSession(c, h.hub, h.upgrader, s.ID(), func(client *ws.Client) {
		ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
		defer cancel()

		snap, err := s.Snapshot(ctx)
		if err != nil {
			logger.WarnContext(c.Request.Context(), "failed to snapshot session for subscriber", zap.Error(err))
			return
		}
		msg, err := ws.NewMessage(EventSnapshot, s.ID(), snap)
		if err != nil {
			logger.ErrorContext(c.Request.Context(), "failed to encode snapshot", zap.Error(err))
			return
		}
		client.Push(msg)
	})
}

func (h *Handler) onMapReady(client *ws.Client, _ *ws.Message) {
	s, err := h.manager.Get(client.SessionID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := s.MapReady(ctx); err != nil {
		logger.Warn("map_ready not applied", zap.String("session_id", client.SessionID), zap.Error(err))
	}
}

func (h *Handler) onLocationReport(client *ws.Client, msg *ws.Message) {
	s, err := h.manager.Get(client.SessionID)
	if err != nil {
		return
	}
	var req LocationReportRequest
	if err := msg.Decode(&req); err != nil {
		logger.Warn("invalid location report", zap.String("session_id", client.SessionID), zap.Error(err))
		return
	}
	if err := validation.ValidateStruct(req); err != nil {
		logger.Warn("invalid location report", zap.String("session_id", client.SessionID), zap.Error(err))
		return
	}
	if err := s.Report(req.report()); err != nil {
		logger.Warn("location report not applied", zap.String("session_id", client.SessionID), zap.Error(err))
	}
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	s, err := h.manager.Get(c.Param("id"))
	if h.fail(c, err) {
		return nil, false
	}
	return s, true
}

func (h *Handler) sessionField(c *gin.Context) (*Session, places.Field, bool) {
	field, err := places.ParseField(c.Param("field"))
	if err != nil {
		common.AppErrorResponse(c, common.NewValidationError(err.Error()))
		return nil, "", false
	}
	s, ok := h.session(c)
	if !ok {
		return nil, "", false
	}
	return s, field, true
}

func (h *Handler) fail(c *gin.Context, err error) bool {
	return common.HandleServiceError(c, toAppError(err), "session operation failed")
}
