package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventbooking/internal/delivery/http/helpers"
	"eventbooking/internal/domain"
)

// maxStreamTopics caps how many event topics one stream may subscribe to.
const maxStreamTopics = 20

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

type OccupancyController struct {
	Logger      *slog.Logger
	Events      domain.EventRepository
	Broadcaster domain.Broadcaster
}

func NewOccupancyController(logger *slog.Logger, events domain.EventRepository, broadcaster domain.Broadcaster) *OccupancyController {
	return &OccupancyController{
		Logger:      logger,
		Events:      events,
		Broadcaster: broadcaster,
	}
}

// GetOccupancy godoc
// @Summary Get an event's current occupancy
// @Description Lock-free snapshot of booked_count and capacity. Clients joining the stream fetch this once for the latest value; the stream has no replay.
// @Tags occupancy
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data: {event_id, booked_count, capacity}"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Router /events/{eventID}/occupancy [get]
func (c *OccupancyController) GetOccupancy(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if !uuidRegex.MatchString(eventID) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid eventID")
		return
	}

	occ, err := c.Events.GetOccupancy(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "event not found")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, occ)
}

// StreamOccupancy godoc
// @Summary Stream occupancy updates over SSE
// @Description Subscribes the connection to the occupancy topics of the listed events and pushes {event_id, booked_count, capacity} after every committed reserve or cancel. At-most-once, no replay; disconnecting leaves all topics.
// @Tags occupancy
// @Produce text/event-stream
// @Security BearerAuth
// @Param events query string true "Comma-separated event IDs (UUIDs)"
// @Success 200 {string} string "SSE stream of occupancy updates"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Router /occupancy/stream [get]
func (c *OccupancyController) StreamOccupancy(w http.ResponseWriter, r *http.Request) {
	eventIDs, ok := parseStreamTopics(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "streaming unsupported")
		return
	}

	connID := uuid.New().String()
	updates, cancel := c.Broadcaster.Register(connID)
	defer cancel()
	for _, eventID := range eventIDs {
		c.Broadcaster.Join(connID, eventID)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed to %d events\n\n", len(eventIDs))
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case occ, open := <-updates:
			if !open {
				return
			}
			payload, err := json.Marshal(occ)
			if err != nil {
				c.Logger.Error("marshal occupancy update", "event_id", occ.EventID, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: occupancy\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func parseStreamTopics(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	raw := r.URL.Query().Get("events")
	if raw == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "events query parameter is required")
		return nil, false
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxStreamTopics {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest,
			fmt.Sprintf("at most %d events per stream", maxStreamTopics))
		return nil, false
	}
	seen := make(map[string]struct{}, len(parts))
	eventIDs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !uuidRegex.MatchString(p) {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid event ID in events")
			return nil, false
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		eventIDs = append(eventIDs, p)
	}
	return eventIDs, true
}
