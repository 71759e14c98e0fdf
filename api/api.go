package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ricardovhz/rinha-ledger/model"
	"github.com/ricardovhz/rinha-ledger/repository"
	"github.com/segmentio/ksuid"
)

const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

type options struct {
	gatherer prometheus.Gatherer
}

type Option func(*options)

// WithMetrics serves the gatherer's metrics on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(o *options) {
		o.gatherer = g
	}
}

type handler struct {
	repo repository.Repository
}

func NewRouter(repo repository.Repository, opts ...Option) *gin.Engine {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger())

	h := &handler{repo: repo}
	// POST /clientes/[id]/transacoes
	r.POST("/clientes/:id/transacoes", h.createTransaction)
	// GET /clientes/[id]/extrato
	r.GET("/clientes/:id/extrato", h.getBalance)

	if o.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (h *handler) createTransaction(gctx *gin.Context) {
	id, ok := clientID(gctx)
	if !ok {
		return
	}

	var t model.TransactionRequest
	if err := gctx.ShouldBindJSON(&t); err != nil {
		slog.Debug("Error binding json", "error", err, "id", id)
		gctx.AbortWithStatus(http.StatusUnprocessableEntity)
		return
	}
	if err := t.Validate(); err != nil {
		slog.Debug("Error validating json", "error", err, "id", id)
		gctx.AbortWithStatus(http.StatusUnprocessableEntity)
		return
	}

	res, err := h.repo.CreateTransaction(gctx.Request.Context(), id, &t)
	if err != nil {
		abortWithError(gctx, err, id)
		return
	}
	gctx.JSON(http.StatusOK, res)
}

func (h *handler) getBalance(gctx *gin.Context) {
	id, ok := clientID(gctx)
	if !ok {
		return
	}

	resume, err := h.repo.GetBalance(gctx.Request.Context(), id)
	if err != nil {
		abortWithError(gctx, err, id)
		return
	}
	gctx.JSON(http.StatusOK, resume)
}

// clientID reads the path id. Account ids are smallints in the store, so
// anything wider is a bad request rather than an unknown account.
func clientID(gctx *gin.Context) (int32, bool) {
	id, err := strconv.ParseInt(gctx.Param("id"), 10, 16)
	if err != nil {
		gctx.AbortWithStatus(http.StatusBadRequest)
		return 0, false
	}
	return int32(id), true
}

func abortWithError(gctx *gin.Context, err error, id int32) {
	switch {
	case errors.Is(err, repository.ErrClientNotFound):
		gctx.AbortWithStatus(http.StatusNotFound)
	case errors.Is(err, repository.ErrBalanceConstraintViolation):
		gctx.AbortWithStatus(http.StatusUnprocessableEntity)
	default:
		slog.Error("Error serving request", "error", err, "id", id, "request_id", gctx.GetString(requestIDKey))
		gctx.AbortWithStatus(http.StatusInternalServerError)
	}
}

// requestID reuses the caller's request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		id := gctx.GetHeader(RequestIDHeader)
		if id == "" {
			id = ksuid.New().String()
		}
		gctx.Set(requestIDKey, id)
		gctx.Header(RequestIDHeader, id)
		gctx.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(gctx *gin.Context) {
		start := time.Now()
		gctx.Next()
		slog.Debug("Request",
			"method", gctx.Request.Method,
			"path", gctx.FullPath(),
			"status", gctx.Writer.Status(),
			"latency", time.Since(start),
			"request_id", gctx.GetString(requestIDKey),
		)
	}
}
