// Reading HTTP handlers.
//
// This file exposes REST endpoints for reading resources:
//   - POST   /readings        (submit, async: returns 202 + pending resource)
//   - GET    /readings        (list, paginated, ETag support)
//   - GET    /readings/{id}   (fetch one)
//   - DELETE /readings/{id}   (soft delete)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reading-backend/internal/domain"
	"github.com/tbourn/go-reading-backend/internal/http/middleware"
	"github.com/tbourn/go-reading-backend/internal/repo"
	"github.com/tbourn/go-reading-backend/internal/services"
	"github.com/tbourn/go-reading-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ReadingService defines reading lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ReadingService interface {
	// Submit validates and charges a new question and returns the pending
	// reading together with an advisory completion estimate.
	Submit(ctx context.Context, userID, question, readingType, locale, sessionID string) (services.SubmitResult, error)
	// Get returns one reading owned by userID.
	Get(ctx context.Context, userID, readingID string) (*domain.Reading, error)
	// ListPage returns a page of the user's readings and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Reading, int64, error)
	// Delete soft-deletes a reading owned by userID.
	Delete(ctx context.Context, userID, readingID string) error
	// Status reports the current state of a reading owned by userID.
	Status(ctx context.Context, userID, readingID string) (services.StatusReport, error)
	// Stats returns per-status reading counts across all users.
	Stats(ctx context.Context) (repo.ReadingStats, error)
}

// BalanceService exposes the credit balance lookup used by the balance
// endpoint.
type BalanceService interface {
	Balance(ctx context.Context, userID string) (*domain.UserBalance, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for readings, status, and worker control.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	readingSvc ReadingService
	balanceSvc BalanceService
	stream     StreamBroker
	driver     JobDriver
	cronSecret string
}

// New constructs and returns a Handlers instance bound to the given services.
func New(readingSvc ReadingService, balanceSvc BalanceService, stream StreamBroker, driver JobDriver, cronSecret string) *Handlers {
	return &Handlers{
		readingSvc: readingSvc,
		balanceSvc: balanceSvc,
		stream:     stream,
		driver:     driver,
		cronSecret: cronSecret,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// SubmitReadingRequest is the JSON payload for submitting a question.
type SubmitReadingRequest struct {
	// Question is the user's question (4-500 characters, single topic).
	Question string `json:"question" binding:"required" example:"Will my career change this year bring growth?"`
	// Type selects the reading focus; defaults to "general".
	Type string `json:"type" example:"career" enums:"general,love,career,finance"`
	// Locale selects the language of user-facing failure messages.
	Locale string `json:"locale" example:"en"`
	// SessionID optionally correlates the submission with a client session.
	SessionID string `json:"session_id" example:"sess-42"`
}

// SubmitReadingResponse acknowledges an accepted submission.
type SubmitReadingResponse struct {
	ReadingID        string `json:"reading_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Status           string `json:"status" example:"pending"`
	EstimatedSeconds int    `json:"estimated_seconds" example:"35"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListReadingsResponse wraps a page of readings and pagination information.
type ListReadingsResponse struct {
	Readings   []domain.Reading `json:"readings"`
	Pagination Pagination       `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// db exposes the underlying gorm handle when the service is the concrete
// implementation. ETag pre-checks and idempotency records are best effort and
// silently skipped for alternative implementations (e.g., test fakes).
func (h *Handlers) db() *gorm.DB {
	if svc, ok := h.readingSvc.(*services.ReadingService); ok {
		return svc.DB
	}
	return nil
}

//
// Handlers
//

// SubmitReading godoc
// @ID          submitReading
// @Summary     Submit a question for an asynchronous reading
// @Description Validates the question, charges one credit, and queues generation. Returns 202 with the pending reading id. Safe to retry with an Idempotency-Key header.
// @Tags        Readings
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"   example(user123)
// @Param       Idempotency-Key  header  string  false "Dedupes retried submissions"
// @Param       body             body    handlers.SubmitReadingRequest  true  "Submission payload"
//
// @Success     202  {object}  handlers.SubmitReadingResponse
// @Success     200  {object}  handlers.SubmitReadingResponse "Replay of a prior submission"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid question or payload"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient credits"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /readings [post]
func (h *Handlers) SubmitReading(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)

	// Replay: the idempotency middleware resolved a prior submission for this
	// (user, key); return it without re-charging.
	if middleware.IsReplay(c) {
		if rid, okk := middleware.ReplayReadingID(c); okk {
			if r, err := h.readingSvc.Get(ctx, uid, rid); err == nil {
				ok(c, http.StatusOK, SubmitReadingResponse{
					ReadingID: r.ID,
					Status:    r.Status,
				})
				return
			}
		}
	}

	var req SubmitReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	res, err := h.readingSvc.Submit(ctx, uid, req.Question, req.Type, req.Locale, req.SessionID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidQuestion):
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuestion, "question must be a single, focused question of 4-500 characters")
		return
	case errors.Is(err, services.ErrInsufficientCredits):
		fail(c, http.StatusPaymentRequired, ErrCodeInsufficientCredits, "not enough credits for a reading")
		return
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeSubmitFailed, err.Error())
		return
	}

	// Record the idempotency key so retries replay instead of re-charging.
	if key, okk := middleware.GetIdempotencyKey(c); okk {
		if db := h.db(); db != nil {
			if svc, isConcrete := h.readingSvc.(*services.ReadingService); isConcrete && svc.IdempotencyTTL > 0 {
				if _, err := repo.CreateIdempotency(ctx, db, uid, key, res.Reading.ID, svc.IdempotencyTTL); err != nil {
					lg := middleware.LoggerFrom(c)
					lg.Warn().Err(err).Str("reading_id", res.Reading.ID).Msg("idempotency record not stored")
				}
			}
		}
	}

	ok(c, http.StatusAccepted, SubmitReadingResponse{
		ReadingID:        res.Reading.ID,
		Status:           res.Reading.Status,
		EstimatedSeconds: res.EstimatedSeconds,
	})
}

// ListReadings godoc
// @ID          listReadings
// @Summary     List readings (paginated)
// @Description Returns a page of the user's readings. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Readings
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListReadingsResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /readings [get]
func (h *Handlers) ListReadings(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if db := h.db(); db != nil {
		count, maxTS, err := repo.ReadingsListStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"readings:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	// Fetch page.
	items, total, err := h.readingSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListReadingsResponse{
		Readings: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// GetReading godoc
// @ID          getReading
// @Summary     Fetch a single reading
// @Description Returns the full reading resource, including the answer once completed.
// @Tags        Readings
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Reading ID (UUID)"       format(uuid)
//
// @Success     200  {object} domain.Reading
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Reading not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /readings/{id} [get]
func (h *Handlers) GetReading(c *gin.Context) {
	readingID := c.Param("id")
	if _, err := uuid.Parse(readingID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reading id must be a UUID")
		return
	}

	r, err := h.readingSvc.Get(c.Request.Context(), userID(c), readingID)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrReadingNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reading not found")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteReading godoc
// @ID          deleteReading
// @Summary     Delete a reading
// @Description Soft-deletes a reading owned by the current user. Credits are not refunded.
// @Tags        Readings
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Reading ID (UUID)"       format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Reading not found"
// @Router      /readings/{id} [delete]
func (h *Handlers) DeleteReading(c *gin.Context) {
	readingID := c.Param("id")
	if _, err := uuid.Parse(readingID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reading id must be a UUID")
		return
	}

	if err := h.readingSvc.Delete(c.Request.Context(), userID(c), readingID); err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "reading not found")
		return
	}
	noContent(c)
}

// GetBalance godoc
// @ID          getBalance
// @Summary     Fetch the current credit balance
// @Description Returns the user's promotional and paid credit balances.
// @Tags        Credits
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object} domain.UserBalance
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /credits/balance [get]
func (h *Handlers) GetBalance(c *gin.Context) {
	bal, err := h.balanceSvc.Balance(c.Request.Context(), userID(c))
	switch {
	case err == nil:
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, bal)
}
