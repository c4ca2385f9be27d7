package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/wso2/abdm-integration-api/internal/gateway"
	"github.com/wso2/abdm-integration-api/internal/service"
	"github.com/wso2/abdm-integration-api/internal/utils"
)

// sendServiceError maps a service error onto the response status the API documents
func sendServiceError(c *gin.Context, message string, err error) {
	var gatewayErr *gateway.GatewayError
	switch {
	case service.IsValidationError(err):
		utils.SendValidationError(c, err.Error())
	case service.IsNotFoundError(err):
		utils.SendNotFoundError(c, err.Error())
	case service.IsInvalidStateError(err):
		utils.SendInvalidStateError(c, message, err.Error())
	case errors.As(err, &gatewayErr):
		utils.SendGatewayError(c, message, err.Error())
	default:
		utils.SendInternalServerError(c, message, err.Error())
	}
}
