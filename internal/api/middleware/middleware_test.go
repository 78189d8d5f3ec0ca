package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/docdb-gateway/internal/api/middleware"
	domainerrors "github.com/unifiedui/docdb-gateway/internal/domain/errors"
	"github.com/unifiedui/docdb-gateway/internal/testutil"
)

func routerWithError(err error) *gin.Engine {
	router := testutil.SetupTestRouter()
	router.GET("/fail", func(c *gin.Context) {
		middleware.HandleError(c, err)
	})
	return router
}

func TestHandleError_DomainErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      string
		parameter string
	}{
		{
			name:      "client input",
			err:       domainerrors.NewClientInputError(domainerrors.CodeInvalidLimit, "limit", "limit must be greater than zero"),
			status:    http.StatusBadRequest,
			code:      domainerrors.CodeInvalidLimit,
			parameter: "limit",
		},
		{
			name:   "exhausted",
			err:    domainerrors.NewPoolExhaustedError("busy"),
			status: http.StatusServiceUnavailable,
			code:   domainerrors.CodePoolExhausted,
		},
		{
			name:   "unavailable",
			err:    domainerrors.NewUnavailableError(errors.New("dial")),
			status: http.StatusServiceUnavailable,
			code:   domainerrors.CodeUnavailable,
		},
		{
			name:   "timeout",
			err:    domainerrors.NewTimeoutError("query", nil),
			status: http.StatusGatewayTimeout,
			code:   domainerrors.CodeExecutionTimeout,
		},
		{
			name:   "protocol",
			err:    domainerrors.NewBackendProtocolError(errors.New("bad reply")),
			status: http.StatusBadGateway,
			code:   domainerrors.CodeBackendProtocol,
		},
		{
			name:      "rejected",
			err:       domainerrors.NewQueryRejectedError("unknown operator: $x", nil),
			status:    http.StatusBadRequest,
			code:      domainerrors.CodeQueryRejected,
			parameter: "query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.PerformRequest(routerWithError(tt.err), http.MethodGet, "/fail", nil)

			testutil.AssertStatusCode(t, tt.status, w)
			body := testutil.ParseErrorResponse(t, w)
			assert.Equal(t, tt.code, body.Error)
			assert.Equal(t, tt.parameter, body.Parameter)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestHandleError_UnclassifiedHidesDetails(t *testing.T) {
	w := testutil.PerformRequest(routerWithError(errors.New("password=hunter2")), http.MethodGet, "/fail", nil)

	testutil.AssertStatusCode(t, http.StatusInternalServerError, w)
	body := testutil.ParseErrorResponse(t, w)
	assert.Equal(t, domainerrors.CodeInternal, body.Error)
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestHandleError_InternalHidesDetails(t *testing.T) {
	err := domainerrors.NewInternalError("secret detail", errors.New("boom"))
	w := testutil.PerformRequest(routerWithError(err), http.MethodGet, "/fail", nil)

	testutil.AssertStatusCode(t, http.StatusInternalServerError, w)
	assert.NotContains(t, w.Body.String(), "secret detail")
}

func TestHandleError_CancelledWritesNothing(t *testing.T) {
	w := testutil.PerformRequest(routerWithError(context.Canceled), http.MethodGet, "/fail", nil)
	assert.Equal(t, 0, w.Body.Len())
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	router := testutil.SetupTestRouter()
	router.HandleMethodNotAllowed = true
	router.NoRoute(middleware.NotFound())
	router.NoMethod(middleware.MethodNotAllowed())
	router.GET("/:collection", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := testutil.PerformRequest(router, http.MethodGet, "/a/b/c", nil)
	testutil.AssertStatusCode(t, http.StatusNotFound, w)
	assert.Equal(t, domainerrors.CodeNotFound, testutil.ParseErrorResponse(t, w).Error)

	w = testutil.PerformRequest(router, http.MethodPost, "/users", nil)
	testutil.AssertStatusCode(t, http.StatusMethodNotAllowed, w)
	assert.Equal(t, domainerrors.CodeMethodNotAllowed, testutil.ParseErrorResponse(t, w).Error)
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Allow"))
}

func TestRecovery_ConvertsPanic(t *testing.T) {
	router := testutil.SetupTestRouter()
	router.Use(middleware.NewErrorMiddleware().Recovery())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := testutil.PerformRequest(router, http.MethodGet, "/panic", nil)
	testutil.AssertStatusCode(t, http.StatusInternalServerError, w)
	assert.Equal(t, domainerrors.CodeInternal, testutil.ParseErrorResponse(t, w).Error)
}

func TestRecovery_RepanicsAbort(t *testing.T) {
	router := testutil.SetupTestRouter()
	router.Use(middleware.NewErrorMiddleware().Recovery())
	router.GET("/abort", func(c *gin.Context) { panic(http.ErrAbortHandler) })

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		testutil.PerformRequest(router, http.MethodGet, "/abort", nil)
	})
}

func TestRequestLogger_AssignsRequestID(t *testing.T) {
	router := testutil.SetupTestRouter()
	logging := middleware.NewLoggingMiddleware()
	router.Use(logging.RequestLogger(), logging.Logger())
	router.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetRequestID(c))
	})

	w := testutil.PerformRequest(router, http.MethodGet, "/id", nil)
	testutil.AssertStatusCode(t, http.StatusOK, w)
	generated := w.Header().Get(middleware.HeaderRequestID)
	require.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	w = testutil.PerformRequest(router, http.MethodGet, "/id", map[string]string{middleware.HeaderRequestID: "given"})
	assert.Equal(t, "given", w.Header().Get(middleware.HeaderRequestID))
}

func TestCORS_Preflight(t *testing.T) {
	router := testutil.SetupTestRouter()
	cfg := middleware.DefaultCORSConfig()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.NewCORSMiddleware(cfg))
	router.GET("/:collection", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := testutil.PerformRequest(router, http.MethodOptions, "/users", map[string]string{"Origin": "http://localhost:5173"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Effective-Limit")

	w = testutil.PerformRequest(router, http.MethodGet, "/users", map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
