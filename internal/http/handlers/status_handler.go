// Status HTTP handlers.
//
// This file exposes the two modes of the status reporter:
//   - GET /readings/{id}/status   (pull: one JSON snapshot)
//   - GET /readings/{id}/events   (push: Server-Sent Events stream)
//
// The stream relays broker events (`progress`, `error`, `reading`, `complete`)
// as SSE frames. Clients that reconnect or that miss events fall back to the
// pull endpoint; the database row is always authoritative.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-reading-backend/internal/domain"
	"github.com/tbourn/go-reading-backend/internal/services"
	"github.com/tbourn/go-reading-backend/internal/worker"
)

// StreamBroker is the subscription half of the progress broker consumed by
// the SSE endpoint. Cancel must be safe to call more than once.
type StreamBroker interface {
	Subscribe(readingID string) (<-chan worker.Event, func())
}

// GetReadingStatus godoc
// @ID          getReadingStatus
// @Summary     Poll the status of a reading
// @Description Returns the current state of a reading. Non-terminal readings include an advisory completion estimate; completed readings include the answer.
// @Tags        Status
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Reading ID (UUID)"       format(uuid)
//
// @Success     200  {object} services.StatusReport
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Reading not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /readings/{id}/status [get]
func (h *Handlers) GetReadingStatus(c *gin.Context) {
	readingID := c.Param("id")
	if _, err := uuid.Parse(readingID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reading id must be a UUID")
		return
	}

	rep, err := h.readingSvc.Status(c.Request.Context(), userID(c), readingID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrReadingNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reading not found")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rep)
}

// StreamReadingEvents godoc
// @ID          streamReadingEvents
// @Summary     Stream reading progress over Server-Sent Events
// @Description Opens an SSE stream of progress, error, reading, and complete events for one reading. The stream closes after a terminal event. Already-terminal readings receive their final event immediately.
// @Tags        Status
// @Produce     text/event-stream
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Reading ID (UUID)"       format(uuid)
//
// @Success     200  {string} string "SSE stream"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Reading not found"
// @Router      /readings/{id}/events [get]
func (h *Handlers) StreamReadingEvents(c *gin.Context) {
	readingID := c.Param("id")
	if _, err := uuid.Parse(readingID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reading id must be a UUID")
		return
	}

	ctx := c.Request.Context()
	uid := userID(c)

	r, err := h.readingSvc.Get(ctx, uid, readingID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrReadingNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reading not found")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	flusher, okk := c.Writer.(http.Flusher)
	if !okk {
		fail(c, http.StatusInternalServerError, ErrCodeStreamUnsupported, "streaming unsupported by server")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	// Terminal readings get their final frames straight from the row; there
	// is nothing left to subscribe to.
	if r.Terminal() {
		if r.Status == domain.StatusFailed {
			msg := "reading failed"
			if r.ErrorMessage != nil {
				msg = *r.ErrorMessage
			}
			// The row keeps the localized message but not the failure code.
			writeSSE(c.Writer, worker.Event{Name: worker.EventError, Data: worker.ErrorData{Code: "failed", Message: msg}})
		} else {
			writeSSE(c.Writer, worker.Event{Name: worker.EventReading, Data: r})
			writeSSE(c.Writer, worker.Event{Name: worker.EventComplete, Data: gin.H{"reading_id": r.ID}})
		}
		flusher.Flush()
		return
	}

	// Subscribe before the initial snapshot so no event can fall between.
	events, cancel := h.stream.Subscribe(readingID)
	defer cancel()

	writeSSE(c.Writer, worker.Event{Name: worker.EventProgress, Data: worker.ProgressData{
		Step:    r.Status,
		Percent: initialPercent(r.Status),
		Message: "connected",
	}})
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSE(c.Writer, ev)
			flusher.Flush()
			if ev.Name == worker.EventComplete || ev.Name == worker.EventError {
				return
			}
		}
	}
}

// writeSSE emits one event in the wire format: `event: <name>` then a single
// `data:` line holding the JSON payload, terminated by a blank line.
func writeSSE(w http.ResponseWriter, ev worker.Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		payload = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, payload)
}

// initialPercent maps a reading status to the percent reported on the first
// frame of a freshly opened stream. Terminal readings never reach here; they
// are answered with snapshot frames before the stream subscribes.
func initialPercent(status string) int {
	if status == domain.StatusProcessing {
		return 20
	}
	return 0
}
