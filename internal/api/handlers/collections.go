package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/docdb-gateway/internal/api/middleware"
	"github.com/unifiedui/docdb-gateway/internal/api/stream"
	"github.com/unifiedui/docdb-gateway/internal/core/docdb"
	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
	"github.com/unifiedui/docdb-gateway/internal/domain/query"
	"github.com/unifiedui/docdb-gateway/internal/services/compiler"
	"github.com/unifiedui/docdb-gateway/internal/services/executor"
	"github.com/unifiedui/docdb-gateway/internal/services/pool"
	"github.com/unifiedui/docdb-gateway/internal/telemetry/metrics"
)

// Leaser hands out pooled connections.
type Leaser interface {
	Lease(ctx context.Context) (*pool.Lease, error)
	Release(l *pool.Lease, health pool.Health) error
}

// QueryExecutor runs a compiled query on a leased connection.
type QueryExecutor interface {
	Execute(ctx context.Context, conn docdb.Conn, q *query.CompiledQuery) (*executor.Cursor, pool.Health, error)
}

// CollectionsHandler serves read queries against collections.
type CollectionsHandler struct {
	compiler *compiler.Compiler
	pool     Leaser
	executor QueryExecutor
	metrics  *metrics.Collector
}

// NewCollectionsHandler creates a new CollectionsHandler. metrics may be nil.
func NewCollectionsHandler(c *compiler.Compiler, p Leaser, e QueryExecutor, m *metrics.Collector) *CollectionsHandler {
	return &CollectionsHandler{
		compiler: c,
		pool:     p,
		executor: e,
		metrics:  m,
	}
}

// Find handles GET /{collection}
// @Summary Query a collection
// @Description Streams the documents of a collection matching the filter as a JSON array
// @Description in relaxed MongoDB Extended JSON.
// @Tags Collections
// @Produce json
// @Param collection path string true "Collection name"
// @Param query query string false "Filter document as JSON" default({})
// @Param limit query int false "Maximum number of documents" default(50) minimum(1)
// @Param skip query int false "Documents to skip" default(0) minimum(0)
// @Param sort query string false "Comma-separated field[:asc|desc] list"
// @Param projection query string false "Comma-separated fields; prefix with - to exclude"
// @Success 200 {array} object
// @Header 200 {integer} X-Effective-Limit "Limit the query ran with"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 502 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Failure 504 {object} dto.ErrorResponse
// @Router /{collection} [get]
func (h *CollectionsHandler) Find(c *gin.Context) {
	ctx := c.Request.Context()
	logger := middleware.GetRequestLogger(c)

	// Compile before leasing so malformed requests never touch the pool
	q, err := h.compiler.Compile(c.Param("collection"), c.Request.URL.Query())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	lease, err := h.pool.Lease(ctx)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	// Fatal unless the request got far enough to know better
	health := pool.HealthFatal
	defer func() {
		if err := h.pool.Release(lease, health); err != nil {
			logger.Warn().Err(err).Uint64("conn", lease.ID()).Msg("failed to release connection")
		}
	}()

	cursor, execHealth, err := h.executor.Execute(ctx, lease.Conn(), q)
	if err != nil {
		health = execHealth
		middleware.HandleError(c, err)
		return
	}
	defer func() {
		if err := cursor.Close(); err != nil {
			logger.Debug().Err(err).Msg("failed to close cursor")
		}
	}()

	w := stream.NewJSONArrayWriter(c.Writer)
	w.SetHeader(stream.HeaderEffectiveLimit, strconv.FormatInt(q.Page.Limit, 10))

	written, err := w.Stream(cursor)
	health = cursor.Health()
	middleware.SetDocumentCount(c, written)
	h.metrics.RecordDocuments(written)

	if err == nil {
		return
	}
	if !w.Committed() {
		middleware.HandleError(c, err)
		return
	}

	h.metrics.RecordStreamFault()
	middleware.SetErrorCode(c, domainerrors.CodeStreamingFault)
	logger.Error().
		Err(err).
		Str("collection", q.Collection.String()).
		Int("documents", written).
		Msg("response truncated")
	panic(http.ErrAbortHandler)
}
