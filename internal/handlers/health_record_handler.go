package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/wso2/abdm-integration-api/internal/gateway"
	"github.com/wso2/abdm-integration-api/internal/middleware"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/internal/service"
	"github.com/wso2/abdm-integration-api/internal/utils"
)

// FetchManager is the fetch orchestration used by the handler
type FetchManager interface {
	FetchHealthRecords(ctx context.Context, request *models.FetchHealthRecordsRequest, actor models.Actor) (*models.HealthRecordFetchRequest, error)
	GetFetchStatus(ctx context.Context, fetchRequestID string) (*models.FetchStatusView, error)
	GetProcessingLog(ctx context.Context, fetchRequestID string) ([]models.HealthRecordProcessingLogEntry, error)
	CancelFetchRequest(ctx context.Context, fetchRequestID, reason string, actor models.Actor) (*models.HealthRecordFetchRequest, error)
}

// RecordReader serves stored health records
type RecordReader interface {
	SearchRecords(ctx context.Context, params service.HealthRecordSearchParams) ([]models.HealthRecordSummary, int, models.HealthRecordFilter, error)
	GetRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecordDetail, error)
	ArchiveRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecord, error)
	DeleteRecord(ctx context.Context, recordID string, actor models.Actor) (*models.HealthRecord, error)
	GetAccessLog(ctx context.Context, recordID string) ([]models.HealthRecordAccessLog, error)
}

// HealthRecordHandler handles health record fetch and read HTTP requests
type HealthRecordHandler struct {
	fetchService  FetchManager
	recordService RecordReader
}

// NewHealthRecordHandler creates a new health record handler instance
func NewHealthRecordHandler(fetchService FetchManager, recordService RecordReader) *HealthRecordHandler {
	return &HealthRecordHandler{
		fetchService:  fetchService,
		recordService: recordService,
	}
}

// FetchHealthRecords handles POST /health-records/fetch
func (h *HealthRecordHandler) FetchHealthRecords(c *gin.Context) {
	var request models.FetchHealthRecordsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	fetch, err := h.fetchService.FetchHealthRecords(c.Request.Context(), &request, middleware.ActorFromRequest(c))
	if err != nil {
		var gatewayErr *gateway.GatewayError
		if fetch != nil && errors.As(err, &gatewayErr) {
			utils.SendGatewayError(c, "Fetch request saved but not submitted to the gateway",
				fmt.Sprintf("fetchRequestId=%s: %v", fetch.FetchRequestID, err))
			return
		}
		sendServiceError(c, "Failed to request health records", err)
		return
	}

	// Documents arrive asynchronously; callers poll the status route
	utils.SendAcceptedResponse(c, fetch.StatusView())
}

// GetFetchStatus handles GET /health-records/fetch/:id/status
func (h *HealthRecordHandler) GetFetchStatus(c *gin.Context) {
	view, err := h.fetchService.GetFetchStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendServiceError(c, "Failed to retrieve fetch status", err)
		return
	}

	utils.SendOKResponse(c, view)
}

// GetProcessingLog handles GET /health-records/fetch/:id/log
func (h *HealthRecordHandler) GetProcessingLog(c *gin.Context) {
	entries, err := h.fetchService.GetProcessingLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendServiceError(c, "Failed to retrieve processing log", err)
		return
	}

	utils.SendOKResponse(c, gin.H{
		"data":  entries,
		"total": len(entries),
	})
}

// CancelFetchRequest handles POST /health-records/fetch/:id/cancel
func (h *HealthRecordHandler) CancelFetchRequest(c *gin.Context) {
	// The body is optional
	var request models.FetchCancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			utils.SendBadRequestError(c, "Invalid request body", err.Error())
			return
		}
	}

	fetch, err := h.fetchService.CancelFetchRequest(c.Request.Context(), c.Param("id"), request.Reason, middleware.ActorFromRequest(c))
	if err != nil {
		sendServiceError(c, "Failed to cancel fetch request", err)
		return
	}

	utils.SendOKResponse(c, fetch.StatusView())
}

// SearchRecords handles GET /health-records?patientId=&type=&from=&to=
func (h *HealthRecordHandler) SearchRecords(c *gin.Context) {
	pagination := utils.PaginationFromQuery(c)

	records, total, filter, err := h.recordService.SearchRecords(c.Request.Context(), service.HealthRecordSearchParams{
		PatientID: c.Query("patientId"),
		Type:      c.Query("type"),
		From:      c.Query("from"),
		To:        c.Query("to"),
		Limit:     pagination.Limit,
		Offset:    pagination.Offset,
	})
	if err != nil {
		sendServiceError(c, "Failed to search health records", err)
		return
	}

	utils.SendOKResponse(c, gin.H{
		"data":     records,
		"metadata": utils.CalculatePaginationMetadata(total, filter.Limit, filter.Offset),
	})
}

// GetRecord handles GET /health-records/:id
func (h *HealthRecordHandler) GetRecord(c *gin.Context) {
	detail, err := h.recordService.GetRecord(c.Request.Context(), c.Param("id"), middleware.ActorFromRequest(c))
	if err != nil {
		sendServiceError(c, "Failed to retrieve health record", err)
		return
	}

	utils.SendOKResponse(c, detail)
}

// ArchiveRecord handles POST /health-records/:id/archive
func (h *HealthRecordHandler) ArchiveRecord(c *gin.Context) {
	record, err := h.recordService.ArchiveRecord(c.Request.Context(), c.Param("id"), middleware.ActorFromRequest(c))
	if err != nil {
		sendServiceError(c, "Failed to archive health record", err)
		return
	}

	utils.SendOKResponse(c, gin.H{
		"id":     record.RecordID,
		"status": record.Status,
	})
}

// DeleteRecord handles DELETE /health-records/:id
func (h *HealthRecordHandler) DeleteRecord(c *gin.Context) {
	record, err := h.recordService.DeleteRecord(c.Request.Context(), c.Param("id"), middleware.ActorFromRequest(c))
	if err != nil {
		sendServiceError(c, "Failed to delete health record", err)
		return
	}

	utils.SendOKResponse(c, gin.H{
		"id":     record.RecordID,
		"status": record.Status,
	})
}

// GetAccessLog handles GET /health-records/:id/access-log
func (h *HealthRecordHandler) GetAccessLog(c *gin.Context) {
	entries, err := h.recordService.GetAccessLog(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendServiceError(c, "Failed to retrieve access log", err)
		return
	}

	utils.SendOKResponse(c, gin.H{
		"data":  entries,
		"total": len(entries),
	})
}
