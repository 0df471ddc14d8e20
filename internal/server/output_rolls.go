package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
)

type createOutputRollRequest struct {
	JobID       string          `json:"job_id"`
	InputRollID string          `json:"input_roll_id"`
	FinalMeter  decimal.Decimal `json:"final_meter"`
	CoreWeight  decimal.Decimal `json:"core_weight"`
	FlagReason  string          `json:"flag_reason"`
	FlagCount   int             `json:"flag_count"`
}

type finalWeightRequest struct {
	FinalWeight *decimal.Decimal `json:"final_weight"`
}

func (s *Server) CreateOutputRoll(c *gin.Context) {
	var req createOutputRollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.outputRollSvc.Create(c.Request.Context(), outputrolldomain.CreateRequest{
		JobID:        strings.TrimSpace(req.JobID),
		InputRollID:  strings.TrimSpace(req.InputRollID),
		NominalMeter: req.FinalMeter,
		CoreWeight:   req.CoreWeight,
		FlagReason:   req.FlagReason,
		FlagCount:    req.FlagCount,
		CreatedBy:    userID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("output_batch", resp.OutputBatch)
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListOutputRolls(c *gin.Context) {
	var query outputrolldomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.outputRollSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Items,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetOutputRollByID(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.outputRollSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetOutputRollLineage(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if _, err := s.outputRollSvc.Get(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.outputRollSvc.Lineage(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ApplyFinalWeight(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req finalWeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.FinalWeight == nil {
		AbortWithError(c, newValidationError("final_weight", "required", "final_weight is required"))
		return
	}

	resp, err := s.outputRollSvc.ApplyFinalWeight(c.Request.Context(), outputrolldomain.FinalWeightRequest{
		OutputRollID: id,
		RawWeight:    *req.FinalWeight,
		UpdatedBy:    userID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("output_batch", resp.OutputBatch)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
