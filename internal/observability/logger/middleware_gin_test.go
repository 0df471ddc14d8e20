package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/millroll/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGinMiddlewareAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	var seen string
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/jobs/:id", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-Id"))

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "/api/jobs/:id", entries[0].ContextMap()["route"])
	}
}

func TestGinMiddlewareKeepsIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewareTagsOutputBatch(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.POST("/api/output-rolls", func(c *gin.Context) {
		c.Set("output_batch", "25019M2001")
		c.Status(http.StatusCreated)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/output-rolls", nil))

	entries := logs.FilterMessage("http_request").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "25019M2001", entries[0].ContextMap()["output_batch"])
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
	}
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, requestLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zap.ErrorLevel, requestLevel("/api/jobs", http.StatusBadGateway, "erp_error"))
	assert.Equal(t, zap.WarnLevel, requestLevel("/api/jobs", http.StatusConflict, "conflict"))
	assert.Equal(t, zap.InfoLevel, requestLevel("/api/jobs", http.StatusBadRequest, "validation_error"))
}

func TestClassifySQL(t *testing.T) {
	cases := []struct {
		sql, op, table string
	}{
		{"WITH x AS (SELECT 1) SELECT * FROM x", "SELECT", "x"},
		{"update input_rolls set is_consumed = true", "UPDATE", "input_rolls"},
		{`INSERT INTO "output_rolls" (id) VALUES (1)`, "INSERT", "output_rolls"},
		{"DELETE FROM roll_sequences WHERE job_id = 1", "DELETE", "roll_sequences"},
		{"", "UNKNOWN", ""},
	}
	for _, tc := range cases {
		op, table := classifySQL(tc.sql)
		assert.Equal(t, tc.op, op, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}
