package erp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, sap config.SAPConfig) *HTTPClient {
	t.Helper()
	plant := config.DefaultPlantConfig()
	return NewHTTPClient(Params{
		Config: config.Config{SAP: sap},
		Plant:  config.NewStaticPlantConfigHolder(plant),
		Clock:  clock.NewFakeClock(time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC)),
		Log:    zap.NewNop(),
	})
}

func TestPostConsumptionSendsGoodsIssue(t *testing.T) {
	var captured map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"d":{"MaterialDocument":"4900001234"}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, config.SAPConfig{MaterialIssueURL: srv.URL, MaterialIssueKey: "issue-key"})
	doc, err := c.PostConsumption(context.Background(), GoodsIssue{
		Material:        "30000950",
		Batch:           "J23-612",
		ProductionOrder: "220012061",
		Quantity:        decimal.RequireFromString("9613.7"),
		Unit:            "KG",
		PostingDate:     "2025-01-09T00:00:00",
		IdempotencyKey:  "01JH0000000000000000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "4900001234", doc)

	assert.Equal(t, "issue-key", headers.Get("APIKey"))
	assert.Equal(t, "application/json", headers.Get("Accept"))
	assert.Equal(t, "01JH0000000000000000000000", headers.Get("Idempotency-Key"))

	assert.Equal(t, "2025-01-09T00:00:00", captured["PostingDate"])
	assert.Equal(t, "2025-01-10T00:00:00", captured["DocumentDate"])
	assert.Equal(t, "05", captured["GoodsMovementCode"])
	items := captured["to_MaterialDocumentItem"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "261", item["GoodsMovementType"])
	assert.Equal(t, "A710", item["Plant"])
	assert.Equal(t, "DW01", item["StorageLocation"])
	assert.Equal(t, "9613.7", item["QuantityInEntryUnit"])
	assert.Equal(t, "220012061", item["ManufacturingOrder"])
	assert.Equal(t, "J23-612", item["Batch"])
}

func TestPostConsumptionParsesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":{"value":"Order 220012061 is blocked"}}}`))
	}))
	defer srv.Close()

	c := newTestClient(t, config.SAPConfig{MaterialIssueURL: srv.URL, MaterialIssueKey: "k"})
	_, err := c.PostConsumption(context.Background(), GoodsIssue{Quantity: decimal.NewFromInt(1)})

	var pe *PostingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindParsed, pe.Kind)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "Order 220012061 is blocked", pe.Error())
	assert.False(t, pe.Ambiguous())
}

func TestPostConsumptionRawBodyOnUnstructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := newTestClient(t, config.SAPConfig{MaterialIssueURL: srv.URL, MaterialIssueKey: "k"})
	_, err := c.PostConsumption(context.Background(), GoodsIssue{Quantity: decimal.NewFromInt(1)})

	var pe *PostingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindHTTP, pe.Kind)
	assert.Equal(t, "SAP Error 502 Bad Gateway: upstream down", pe.Message)
}

func TestPostConsumptionMissingConfig(t *testing.T) {
	c := newTestClient(t, config.SAPConfig{})
	_, err := c.PostConsumption(context.Background(), GoodsIssue{})

	var pe *PostingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindConfig, pe.Kind)
}

func TestPostRollSucceedsOnlyOn201(t *testing.T) {
	status := http.StatusCreated
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &captured)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := newTestClient(t, config.SAPConfig{RollURL: srv.URL, RollAPIKey: "roll-key"})
	req := RollReceipt{
		Batch:           "251003M1001",
		CorrectedMeter:  decimal.RequireFromString("999.50"),
		NetWeight:       decimal.RequireFromString("250.5"),
		ProductionOrder: "220012061",
	}

	require.NoError(t, c.PostRoll(context.Background(), req))
	assert.Equal(t, "KG", captured["AlternateUOM"])
	assert.Equal(t, "250.5", captured["AlternateQuantity"])
	assert.Equal(t, "M", captured["UOM"])
	assert.Equal(t, "999.5", captured["Quantity"])
	assert.Equal(t, "251003M1001", captured["Batch"])

	status = http.StatusOK
	err := c.PostRoll(context.Background(), req)
	var pe *PostingError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusOK, pe.StatusCode)
}

func TestPostRollTransportFailureIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(t, config.SAPConfig{RollURL: url, RollAPIKey: "k"})
	err := c.PostRoll(context.Background(), RollReceipt{})

	assert.True(t, IsAmbiguous(err))
}
