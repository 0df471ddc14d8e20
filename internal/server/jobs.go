package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
)

type openJobRequest struct {
	MachineID       string          `json:"machine_id"`
	ShiftID         int             `json:"shift_id"`
	ProductionOrder string          `json:"production_order"`
	Batch           string          `json:"batch"`
	MaterialNumber  string          `json:"material_number"`
	StartWeight     decimal.Decimal `json:"start_weight"`
	StartMeter      decimal.Decimal `json:"start_meter"`
}

type endJobRequest struct {
	InputRollID     string          `json:"input_roll_id"`
	MaterialNumber  string          `json:"material_number"`
	Batch           string          `json:"batch"`
	ProductionOrder string          `json:"production_order"`
	ConsumedWeight  decimal.Decimal `json:"consumed_weight"`
	Unit            string          `json:"unit"`
	PostingDate     string          `json:"posting_date"`
	StorageLocation string          `json:"storage_location"`
}

func (s *Server) OpenJob(c *gin.Context) {
	var req openJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.jobSvc.Open(c.Request.Context(), jobdomain.OpenRequest{
		MachineID:       strings.TrimSpace(req.MachineID),
		ShiftID:         req.ShiftID,
		ProductionOrder: strings.TrimSpace(req.ProductionOrder),
		Batch:           strings.TrimSpace(req.Batch),
		MaterialNumber:  strings.TrimSpace(req.MaterialNumber),
		StartWeight:     req.StartWeight,
		StartMeter:      req.StartMeter,
		CreatedBy:       userID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Reused {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) ListActiveJobs(c *gin.Context) {
	items, err := s.jobSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetJobByID(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.jobSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) EndJob(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req endJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	endReq := inputrolldomain.EndRequest{
		MaterialNumber:  req.MaterialNumber,
		Batch:           req.Batch,
		ProductionOrder: req.ProductionOrder,
		ConsumedWeight:  req.ConsumedWeight,
		Unit:            req.Unit,
		PostingDate:     req.PostingDate,
		StorageLocation: req.StorageLocation,
	}
	if raw := strings.TrimSpace(req.InputRollID); raw != "" {
		rollID, err := parseOptionalSnowflake(raw)
		if err != nil {
			AbortWithError(c, newValidationError("input_roll_id", "invalid_input_roll_id", "invalid input roll id"))
			return
		}
		endReq.InputRollID = rollID
	}

	resp, err := s.jobSvc.End(c.Request.Context(), jobdomain.EndRequest{
		JobID:     id,
		InputRoll: endReq,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
