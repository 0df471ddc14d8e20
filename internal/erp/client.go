package erp

import (
	"context"

	"github.com/shopspring/decimal"
)

// Client posts goods movements to the ERP. Calls are synchronous and are
// never retried by the client.
type Client interface {
	PostConsumption(ctx context.Context, req GoodsIssue) (string, error)
	PostRoll(ctx context.Context, req RollReceipt) error
}

// GoodsIssue consumes material against a production order (movement 261).
type GoodsIssue struct {
	Material        string
	Batch           string
	ProductionOrder string
	Quantity        decimal.Decimal
	Unit            string
	PostingDate     string
	StorageLocation string
	IdempotencyKey  string
}

// RollReceipt reports a produced output roll.
type RollReceipt struct {
	Batch           string
	CorrectedMeter  decimal.Decimal
	NetWeight       decimal.Decimal
	ProductionOrder string
	IdempotencyKey  string
}

const (
	GoodsMovementCodeIssue = "05"
	MovementTypeIssue      = "261"
	UnitKilogram           = "KG"
	UnitMeter              = "M"
)

type materialDocumentItem struct {
	Material            string `json:"Material"`
	GoodsMovementType   string `json:"GoodsMovementType"`
	Plant               string `json:"Plant"`
	StorageLocation     string `json:"StorageLocation"`
	QuantityInEntryUnit string `json:"QuantityInEntryUnit"`
	EntryUnit           string `json:"EntryUnit"`
	ManufacturingOrder  string `json:"ManufacturingOrder"`
	Batch               string `json:"Batch"`
}

type materialDocumentRequest struct {
	PostingDate            string                 `json:"PostingDate"`
	DocumentDate           string                 `json:"DocumentDate"`
	GoodsMovementCode      string                 `json:"GoodsMovementCode"`
	ToMaterialDocumentItem []materialDocumentItem `json:"to_MaterialDocumentItem"`
}

type materialDocumentResponse struct {
	D struct {
		MaterialDocument string `json:"MaterialDocument"`
	} `json:"d"`
}

type rollRequest struct {
	AlternateUOM      string `json:"AlternateUOM"`
	AlternateQuantity string `json:"AlternateQuantity"`
	UOM               string `json:"UOM"`
	Quantity          string `json:"Quantity"`
	Batch             string `json:"Batch"`
	ProductionOrder   string `json:"ProductionOrder"`
}

type errorEnvelope struct {
	Error struct {
		Message struct {
			Value string `json:"value"`
		} `json:"message"`
	} `json:"error"`
}
