package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/internal/service"
	"github.com/wso2/abdm-integration-api/internal/utils"
)

// CallbackAcceptor persists network callbacks for asynchronous processing
type CallbackAcceptor interface {
	Accept(ctx context.Context, kind models.CallbackKind, body []byte) (*models.CallbackAck, error)
}

// CallbackHandler receives the network's asynchronous notifications. Bodies are
// acknowledged once stored; the outcome of processing is never reported back.
type CallbackHandler struct {
	receiver CallbackAcceptor
	maxBody  int64
	logger   *logrus.Logger
}

// NewCallbackHandler creates a new callback handler instance. Bodies over
// maxBody bytes are rejected with 413.
func NewCallbackHandler(receiver CallbackAcceptor, maxBody int64, logger *logrus.Logger) *CallbackHandler {
	return &CallbackHandler{
		receiver: receiver,
		maxBody:  maxBody,
		logger:   logger,
	}
}

// ConsentCallback handles POST /callbacks/consent
func (h *CallbackHandler) ConsentCallback(c *gin.Context) {
	h.accept(c, models.CallbackKindConsent)
}

// HealthInfoCallback handles POST /callbacks/health-information
func (h *CallbackHandler) HealthInfoCallback(c *gin.Context) {
	h.accept(c, models.CallbackKindHealthInfo)
}

func (h *CallbackHandler) accept(c *gin.Context, kind models.CallbackKind) {
	body, err := utils.ReadBody(c, h.maxBody)
	if err != nil {
		h.logger.WithError(err).WithField("kind", kind).Warn("Failed to read callback body")
		utils.SendBodyReadError(c, err)
		return
	}

	ack, err := h.receiver.Accept(c.Request.Context(), kind, body)
	if err != nil {
		if service.IsValidationError(err) {
			utils.SendBadRequestError(c, "Invalid callback body", err.Error())
			return
		}
		h.logger.WithError(err).WithField("kind", kind).Error("Failed to accept callback")
		utils.SendInternalServerError(c, "Failed to accept callback", "")
		return
	}

	utils.SendAcceptedResponse(c, ack)
}
