package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wso2/abdm-integration-api/internal/gateway"
	"github.com/wso2/abdm-integration-api/internal/middleware"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/internal/utils"
)

// ConsentRequestManager is the consent orchestration used by the handler
type ConsentRequestManager interface {
	CreateConsentRequest(ctx context.Context, request *models.ConsentRequestCreateRequest, actor models.Actor) (*models.ConsentRequest, error)
	ResubmitConsentRequest(ctx context.Context, consentRequestID string, actor models.Actor) (*models.ConsentRequest, error)
	GetConsentRequest(ctx context.Context, consentRequestID string) (*models.ConsentRequestDetail, error)
	ListActiveConsents(ctx context.Context, patientID string, includeAll bool) ([]models.ConsentRequestDetail, error)
	RevokeConsent(ctx context.Context, consentRequestID, reason string, actor models.Actor) (*models.ConsentRequest, error)
	GetAuditTrail(ctx context.Context, consentRequestID string) ([]models.ConsentAuditLogEntry, error)
}

// ConsentHandler handles consent request HTTP requests
type ConsentHandler struct {
	consentService ConsentRequestManager
}

// NewConsentHandler creates a new consent handler instance
func NewConsentHandler(consentService ConsentRequestManager) *ConsentHandler {
	return &ConsentHandler{consentService: consentService}
}

// CreateConsentRequest handles POST /consent-requests
func (h *ConsentHandler) CreateConsentRequest(c *gin.Context) {
	var request models.ConsentRequestCreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	consentRequest, err := h.consentService.CreateConsentRequest(c.Request.Context(), &request, middleware.ActorFromRequest(c))
	if err != nil {
		// The request is kept when only the submission failed so it can be resubmitted
		var gatewayErr *gateway.GatewayError
		if consentRequest != nil && errors.As(err, &gatewayErr) {
			utils.SendGatewayError(c, "Consent request saved but not submitted to the gateway",
				fmt.Sprintf("consentRequestId=%s: %v", consentRequest.ConsentRequestID, err))
			return
		}
		sendServiceError(c, "Failed to create consent request", err)
		return
	}

	utils.SendCreatedResponse(c, consentRequest)
}

// ResubmitConsentRequest handles POST /consent-requests/:id/resubmit
func (h *ConsentHandler) ResubmitConsentRequest(c *gin.Context) {
	consentRequest, err := h.consentService.ResubmitConsentRequest(c.Request.Context(), c.Param("id"), middleware.ActorFromRequest(c))
	if err != nil {
		sendServiceError(c, "Failed to resubmit consent request", err)
		return
	}

	utils.SendOKResponse(c, consentRequest)
}

// GetConsentRequest handles GET /consent-requests/:id
func (h *ConsentHandler) GetConsentRequest(c *gin.Context) {
	detail, err := h.consentService.GetConsentRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendServiceError(c, "Failed to retrieve consent request", err)
		return
	}

	utils.SendOKResponse(c, detail)
}

// ListConsentRequests handles GET /consent-requests?patientId=
func (h *ConsentHandler) ListConsentRequests(c *gin.Context) {
	// Terminal requests are only listed on ?all=true
	includeAll := false
	if raw := c.Query("all"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			utils.SendBadRequestError(c, "Invalid query parameter", "all must be a boolean")
			return
		}
		includeAll = parsed
	}

	consents, err := h.consentService.ListActiveConsents(c.Request.Context(), c.Query("patientId"), includeAll)
	if err != nil {
		sendServiceError(c, "Failed to list consent requests", err)
		return
	}

	utils.SendOKResponse(c, gin.H{
		"data":  consents,
		"total": len(consents),
	})
}

// RevokeConsent handles POST /consent-requests/:id/revoke
func (h *ConsentHandler) RevokeConsent(c *gin.Context) {
	var request models.ConsentRevokeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.SendBadRequestError(c, "Invalid request body", err.Error())
		return
	}

	consentRequest, err := h.consentService.RevokeConsent(c.Request.Context(), c.Param("id"), request.Reason, middleware.ActorFromRequest(c))
	if err != nil {
		sendServiceError(c, "Failed to revoke consent", err)
		return
	}

	utils.SendOKResponse(c, consentRequest)
}

// GetAuditTrail handles GET /consent-requests/:id/audit
func (h *ConsentHandler) GetAuditTrail(c *gin.Context) {
	entries, err := h.consentService.GetAuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendServiceError(c, "Failed to retrieve audit trail", err)
		return
	}

	utils.SendOKResponse(c, gin.H{
		"data":  entries,
		"total": len(entries),
	})
}
