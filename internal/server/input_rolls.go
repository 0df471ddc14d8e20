package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
)

type createInputRollRequest struct {
	JobID          string          `json:"job_id"`
	Batch          string          `json:"batch"`
	MaterialNumber string          `json:"material_number"`
	StartWeight    decimal.Decimal `json:"start_weight"`
	StartMeter     decimal.Decimal `json:"start_meter"`
}

type endInputRollRequest struct {
	MaterialNumber  string          `json:"material_number"`
	Batch           string          `json:"batch"`
	ProductionOrder string          `json:"production_order"`
	ConsumedWeight  decimal.Decimal `json:"consumed_weight"`
	Unit            string          `json:"unit"`
	PostingDate     string          `json:"posting_date"`
	StorageLocation string          `json:"storage_location"`
}

func (s *Server) CreateInputRoll(c *gin.Context) {
	var req createInputRollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.inputRollSvc.Create(c.Request.Context(), inputrolldomain.CreateRequest{
		JobID:          strings.TrimSpace(req.JobID),
		Batch:          strings.TrimSpace(req.Batch),
		MaterialNumber: strings.TrimSpace(req.MaterialNumber),
		StartWeight:    req.StartWeight,
		StartMeter:     req.StartMeter,
		CreatedBy:      userID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetInputRollByID(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.inputRollSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EndInputRoll(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req endInputRollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.inputRollSvc.End(c.Request.Context(), inputrolldomain.EndRequest{
		InputRollID:     id,
		MaterialNumber:  req.MaterialNumber,
		Batch:           req.Batch,
		ProductionOrder: req.ProductionOrder,
		ConsumedWeight:  req.ConsumedWeight,
		Unit:            req.Unit,
		PostingDate:     req.PostingDate,
		StorageLocation: req.StorageLocation,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
