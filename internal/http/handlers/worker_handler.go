// Worker control HTTP handlers.
//
// This file exposes operational endpoints that drive the pipeline from the
// outside:
//   - POST /workers/cron     (batch-process pending readings; cron calls this)
//   - POST /workers/trigger  (force one reading or a small batch through)
//   - GET  /readings/stats   (per-status counts for dashboards)
//
// Both POST endpoints are guarded by a shared secret in the X-Cron-Secret
// header, compared in constant time.
package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-reading-backend/internal/http/middleware"
	"github.com/tbourn/go-reading-backend/internal/services"
	"github.com/tbourn/go-reading-backend/internal/utils"
)

// HeaderCronSecret authorizes batch and trigger endpoints.
const HeaderCronSecret = "X-Cron-Secret"

// JobDriver runs pending readings outside the long-lived worker goroutines.
// The cron endpoint uses Reap then Drive, the manual trigger uses ProcessOne.
type JobDriver interface {
	// Drive claims and processes up to batchSize pending readings, returning
	// how many completed and how many failed.
	Drive(ctx context.Context, batchSize int) (processed, failed int, err error)
	// ProcessOne forces a single pending reading through the pipeline.
	ProcessOne(ctx context.Context, readingID string) error
	// Reap sweeps stalled readings: resettable ones go back to pending,
	// exhausted ones are failed and refunded.
	Reap(ctx context.Context)
}

// CronResponse summarizes one batch run.
type CronResponse struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// TriggerRequest selects what the manual trigger processes: one reading by id,
// or a batch of pending readings when the id is empty.
type TriggerRequest struct {
	ReadingID string `json:"reading_id,omitempty" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	BatchSize int    `json:"batch_size,omitempty" example:"5"`
}

// authorizeCron verifies the shared secret header in constant time. An empty
// configured secret disables the endpoints entirely.
func (h *Handlers) authorizeCron(c *gin.Context) bool {
	if h.cronSecret == "" {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "worker endpoints disabled")
		return false
	}
	got := c.GetHeader(HeaderCronSecret)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.cronSecret)) != 1 {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid cron secret")
		return false
	}
	return true
}

// RunCron godoc
// @ID          runCron
// @Summary     Process a batch of pending readings
// @Description Claims and processes up to batch_size pending readings in submission order. Intended to be invoked by an external scheduler; also reaps stalled jobs.
// @Tags        Workers
// @Produce     json
//
// @Param       X-Cron-Secret  header  string  true  "Shared scheduler secret"
// @Param       batch_size     query   int     false "Readings per run" minimum(1) default(10)
//
// @Success     200  {object} handlers.CronResponse
// @Failure     401  {object} handlers.ErrorResponse "Invalid secret"
// @Failure     403  {object} handlers.ErrorResponse "Endpoint disabled"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /workers/cron [post]
func (h *Handlers) RunCron(c *gin.Context) {
	if !h.authorizeCron(c) {
		return
	}
	batch := utils.AtoiDefault(c.Query("batch_size"), 10)
	if batch < 1 {
		batch = 1
	}
	if batch > 100 {
		batch = 100
	}

	// Sweep stalled work first so readings abandoned by a dead worker rejoin
	// the pending set this very batch picks from.
	h.driver.Reap(c.Request.Context())

	processed, failed, err := h.driver.Drive(c.Request.Context(), batch)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	lg := middleware.LoggerFrom(c)
	lg.Info().Int("processed", processed).Int("failed", failed).Msg("cron batch finished")
	ok(c, http.StatusOK, CronResponse{Processed: processed, Failed: failed})
}

// TriggerWorker godoc
// @ID          triggerWorker
// @Summary     Force-process readings
// @Description Processes one reading by id, or a batch of pending readings when no id is given. Useful for operational recovery.
// @Tags        Workers
// @Accept      json
// @Produce     json
//
// @Param       X-Cron-Secret  header  string  true  "Shared scheduler secret"
// @Param       body           body    handlers.TriggerRequest  false  "Trigger payload"
//
// @Success     200  {object} handlers.CronResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Invalid secret"
// @Failure     404  {object} handlers.ErrorResponse "Reading not found"
// @Failure     409  {object} handlers.ErrorResponse "Reading not pending"
// @Router      /workers/trigger [post]
func (h *Handlers) TriggerWorker(c *gin.Context) {
	if !h.authorizeCron(c) {
		return
	}

	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if req.ReadingID != "" {
		if _, err := uuid.Parse(req.ReadingID); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reading id must be a UUID")
			return
		}
		err := h.driver.ProcessOne(c.Request.Context(), req.ReadingID)
		switch {
		case err == nil:
			ok(c, http.StatusOK, CronResponse{Processed: 1})
		case errors.Is(err, services.ErrReadingNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reading not found")
		case errors.Is(err, services.ErrReadingNotPending):
			fail(c, http.StatusConflict, ErrCodeConflict, "reading is not pending")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	batch := req.BatchSize
	if batch < 1 {
		batch = 1
	}
	if batch > 100 {
		batch = 100
	}
	processed, failed, err := h.driver.Drive(c.Request.Context(), batch)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, CronResponse{Processed: processed, Failed: failed})
}

// ReadingStats godoc
// @ID          readingStats
// @Summary     Per-status reading counts
// @Description Returns global counts of pending, processing, completed, and failed readings. Guarded by the scheduler secret.
// @Tags        Workers
// @Produce     json
//
// @Param       X-Cron-Secret  header  string  true  "Shared scheduler secret"
//
// @Success     200  {object} repo.ReadingStats
// @Failure     401  {object} handlers.ErrorResponse "Invalid secret"
// @Failure     403  {object} handlers.ErrorResponse "Endpoint disabled"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /readings/stats [get]
func (h *Handlers) ReadingStats(c *gin.Context) {
	if !h.authorizeCron(c) {
		return
	}
	stats, err := h.readingSvc.Stats(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, stats)
}
