package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/millroll/internal/config"
	"github.com/smallbiznis/millroll/internal/erp"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	"github.com/smallbiznis/millroll/internal/observability"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	"github.com/smallbiznis/millroll/internal/provenance"
	"github.com/smallbiznis/millroll/internal/sequence"
	"github.com/smallbiznis/millroll/internal/testutil"
	"github.com/smallbiznis/millroll/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*testutil.Stack, *gin.Engine) {
	t.Helper()
	s := testutil.NewStack(t, time.Date(2025, 1, 10, 8, 0, 0, 0, testutil.PlantZone))
	engine := NewEngine(observability.Config{}, nil)
	NewServer(ServerParams{
		Gin:           engine,
		Cfg:           config.Config{},
		DB:            s.DB,
		MachineSvc:    s.Machines,
		JobSvc:        s.Jobs,
		InputRollSvc:  s.InputRolls,
		OutputRollSvc: s.OutputRolls,
		PostingSvc:    s.Postings,
	})
	return s, engine
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderUserID, "op-7")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	_, engine := newTestServer(t)
	rec := do(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOutputRollLifecycle(t *testing.T) {
	s, engine := newTestServer(t)
	m := testutil.SeedMachine(t, s.DB, s.Node, "Slitter 2", "M2")

	rec := do(t, engine, http.MethodPost, "/api/jobs", map[string]any{
		"machine_id":       m.ID.String(),
		"shift_id":         1,
		"production_order": "PO-1001",
		"batch":            "A1",
		"material_number":  "MAT-01",
		"start_weight":     "500",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decode(t, rec)["data"].(map[string]any)
	jobID := data["job"].(map[string]any)["id"].(string)
	inputID := data["input_roll"].(map[string]any)["id"].(string)
	assert.Equal(t, "op-7", data["job"].(map[string]any)["created_by"])

	rec = do(t, engine, http.MethodPost, "/api/output-rolls", map[string]any{
		"job_id":        jobID,
		"input_roll_id": inputID,
		"final_meter":   "1000",
		"core_weight":   "2",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "25019M2001", out["output_batch"])
	assert.Equal(t, "A1", out["from_input_batch"])
	outID := out["id"].(string)

	rec = do(t, engine, http.MethodGet, "/api/output-rolls/"+outID+"/lineage", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)

	s.ERP.On("PostRoll", mock.Anything, mock.Anything).Return(nil).Once()
	rec = do(t, engine, http.MethodPut, "/api/output-rolls/"+outID+"/final-weight", map[string]any{"final_weight": "252.5"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out = decode(t, rec)["data"].(map[string]any)
	assert.Equal(t, "999.5", out["final_meter"])
	assert.Equal(t, "250.5", out["final_weight"])
	assert.Equal(t, "op-7", out["updated_by"])

	rec = do(t, engine, http.MethodPut, "/api/output-rolls/"+outID+"/final-weight", map[string]any{"final_weight": "252.5"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, engine, http.MethodGet, "/api/output-rolls?status=completed&job_id="+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Len(t, list["data"], 1)
	assert.EqualValues(t, 1, list["page_info"].(map[string]any)["total"])

	rec = do(t, engine, http.MethodGet, "/api/erp-postings?reference_type=output_roll", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["data"], 1)
}

func TestFinalWeightRequiresValue(t *testing.T) {
	_, engine := newTestServer(t)

	rec := do(t, engine, http.MethodPut, "/api/output-rolls/123/final-weight", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "validation_error", body["type"])
}

func TestERPRejectionIsSurfacedVerbatim(t *testing.T) {
	s, engine := newTestServer(t)
	m := testutil.SeedMachine(t, s.DB, s.Node, "Slitter 2", "M2")

	rec := do(t, engine, http.MethodPost, "/api/jobs", map[string]any{
		"machine_id":       m.ID.String(),
		"shift_id":         1,
		"production_order": "PO-1001",
		"batch":            "A1",
		"material_number":  "MAT-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decode(t, rec)["data"].(map[string]any)["job"].(map[string]any)["id"].(string)

	s.ERP.On("PostConsumption", mock.Anything, mock.Anything).
		Return("", &erp.PostingError{Kind: erp.KindParsed, StatusCode: 400, Message: "Deficit of batch A1"}).Once()

	rec = do(t, engine, http.MethodPost, "/api/jobs/"+jobID+"/end", map[string]any{"consumed_weight": "12"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)["error"].(map[string]any)
	assert.Equal(t, "erp_error", body["type"])
	assert.Equal(t, "Deficit of batch A1", body["message"])
}

func TestNotFoundAndBadIDs(t *testing.T) {
	_, engine := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, engine, http.MethodGet, "/api/jobs/42", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, engine, http.MethodGet, "/api/output-rolls/42", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, engine, http.MethodGet, "/api/machines/42", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, engine, http.MethodGet, "/api/jobs/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, engine, http.MethodGet, "/api/output-rolls?status=lost", nil).Code)
}

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{name: "validation", err: outputrolldomain.ErrInvalidMeter, status: http.StatusBadRequest, typ: "validation_error"},
		{name: "erp config", err: &erp.PostingError{Kind: erp.KindConfig, Message: "SAP_BASE_URL is not configured"}, status: http.StatusBadGateway, typ: "erp_configuration_error"},
		{name: "wrapped erp", err: fmt.Errorf("end: %w", &erp.PostingError{Kind: erp.KindTransport, Message: "timeout"}), status: http.StatusBadGateway, typ: "erp_error"},
		{name: "job ended", err: jobdomain.ErrJobEnded, status: http.StatusConflict, typ: "conflict"},
		{name: "exhausted", err: fmt.Errorf("%w: boom", outputrolldomain.ErrAllocationExhausted), status: http.StatusConflict, typ: "conflict"},
		{name: "roll numbers used up", err: sequence.ErrRollNumberRange, status: http.StatusConflict, typ: "conflict"},
		{name: "storage not found", err: db.Wrap("x", db.ErrNotFound), status: http.StatusNotFound, typ: "not_found"},
		{name: "provenance", err: &provenance.ResolutionError{Op: "list_unconsumed", Err: errors.New("io")}, status: http.StatusInternalServerError, typ: "provenance_error"},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError, typ: "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)
		})
	}
}
