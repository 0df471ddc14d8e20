package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/config"
	"github.com/smallbiznis/millroll/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

type Params struct {
	fx.In

	Config config.Config
	Plant  *config.PlantConfigHolder
	Clock  clock.Clock
	Log    *zap.Logger
}

type HTTPClient struct {
	sap    config.SAPConfig
	plant  *config.PlantConfigHolder
	clock  clock.Clock
	log    *zap.Logger
	client *http.Client
}

func NewHTTPClient(p Params) *HTTPClient {
	timeout := time.Duration(p.Config.SAP.RequestTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		sap:    p.Config.SAP,
		plant:  p.Plant,
		clock:  p.Clock,
		log:    p.Log.Named("erp.client"),
		client: tracing.WrapHTTPClient(&http.Client{Timeout: timeout}, "sap"),
	}
}

func (c *HTTPClient) PostConsumption(ctx context.Context, req GoodsIssue) (string, error) {
	if c.sap.MaterialIssueURL == "" || c.sap.MaterialIssueKey == "" {
		return "", configError("SAP material issuance URL or API key is not configured")
	}

	plant := c.plant.Get()
	storageLocation := strings.TrimSpace(req.StorageLocation)
	if storageLocation == "" {
		storageLocation = plant.StorageLocation
	}

	body := materialDocumentRequest{
		PostingDate:       req.PostingDate,
		DocumentDate:      clock.Day(c.clock.Now()) + "T00:00:00",
		GoodsMovementCode: GoodsMovementCodeIssue,
		ToMaterialDocumentItem: []materialDocumentItem{{
			Material:            req.Material,
			GoodsMovementType:   MovementTypeIssue,
			Plant:               plant.Plant,
			StorageLocation:     storageLocation,
			QuantityInEntryUnit: req.Quantity.String(),
			EntryUnit:           req.Unit,
			ManufacturingOrder:  req.ProductionOrder,
			Batch:               req.Batch,
		}},
	}

	status, respBody, err := c.post(ctx, c.sap.MaterialIssueURL, c.sap.MaterialIssueKey, req.IdempotencyKey, body)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", parseFailure(status, respBody)
	}

	var doc materialDocumentResponse
	if err := json.Unmarshal(respBody, &doc); err != nil || strings.TrimSpace(doc.D.MaterialDocument) == "" {
		return "", &PostingError{
			Kind:       KindResponse,
			StatusCode: status,
			Message:    fmt.Sprintf("SAP response missing material document: %s", string(respBody)),
			Err:        err,
		}
	}

	c.log.Info("goods issue posted",
		zap.String("batch", req.Batch),
		zap.String("production_order", req.ProductionOrder),
		zap.String("material_document", doc.D.MaterialDocument),
	)
	return doc.D.MaterialDocument, nil
}

func (c *HTTPClient) PostRoll(ctx context.Context, req RollReceipt) error {
	if c.sap.RollURL == "" || c.sap.RollAPIKey == "" {
		return configError("SAP roll URL or API key is not configured")
	}

	body := rollRequest{
		AlternateUOM:      UnitKilogram,
		AlternateQuantity: req.NetWeight.String(),
		UOM:               UnitMeter,
		Quantity:          req.CorrectedMeter.String(),
		Batch:             req.Batch,
		ProductionOrder:   req.ProductionOrder,
	}

	status, respBody, err := c.post(ctx, c.sap.RollURL, c.sap.RollAPIKey, req.IdempotencyKey, body)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return parseFailure(status, respBody)
	}

	c.log.Info("roll posted",
		zap.String("batch", req.Batch),
		zap.String("production_order", req.ProductionOrder),
	)
	return nil
}

func (c *HTTPClient) post(ctx context.Context, url, apiKey, idempotencyKey string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, configError(fmt.Sprintf("invalid SAP request: %v", err))
	}
	req.Header.Set("APIKey", apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn("sap request failed", zap.String("idempotency_key", idempotencyKey), zap.Error(err))
		return 0, nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, transportError(err)
	}
	return resp.StatusCode, body, nil
}

// parseFailure prefers the ERP error envelope, then the raw JSON body, then
// the status line.
func parseFailure(status int, body []byte) *PostingError {
	var generic any
	if err := json.Unmarshal(body, &generic); err == nil {
		var envelope errorEnvelope
		_ = json.Unmarshal(body, &envelope)
		if msg := strings.TrimSpace(envelope.Error.Message.Value); msg != "" {
			return &PostingError{Kind: KindParsed, StatusCode: status, Message: msg}
		}
		return &PostingError{Kind: KindHTTP, StatusCode: status, Message: string(body)}
	}
	return &PostingError{
		Kind:       KindHTTP,
		StatusCode: status,
		Message:    fmt.Sprintf("SAP Error %d %s: %s", status, http.StatusText(status), string(body)),
	}
}

var _ Client = (*HTTPClient)(nil)
