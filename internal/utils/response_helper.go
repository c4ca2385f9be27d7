package utils

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wso2/abdm-integration-api/internal/models"
)

// SendSuccessResponse sends a successful JSON response
func SendSuccessResponse(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// SendErrorResponse sends an error JSON response
func SendErrorResponse(c *gin.Context, statusCode int, errCode, message, details string) {
	c.JSON(statusCode, models.ErrorResponse{
		Code:    errCode,
		Message: message,
		Details: details,
	})
}

// SendCreatedResponse sends a 201 Created response
func SendCreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// SendAcceptedResponse sends a 202 Accepted response
func SendAcceptedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// SendOKResponse sends a 200 OK response
func SendOKResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// SendBadRequestError sends a 400 Bad Request error
func SendBadRequestError(c *gin.Context, message, details string) {
	SendErrorResponse(c, http.StatusBadRequest, models.ErrCodeBadRequest, message, details)
}

// SendUnauthorizedError sends a 401 Unauthorized error
func SendUnauthorizedError(c *gin.Context, message string) {
	SendErrorResponse(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, message, "")
}

// SendNotFoundError sends a 404 Not Found error
func SendNotFoundError(c *gin.Context, message string) {
	SendErrorResponse(c, http.StatusNotFound, models.ErrCodeNotFound, message, "")
}

// SendInvalidStateError sends a 409 Conflict error for an operation the current state forbids
func SendInvalidStateError(c *gin.Context, message, details string) {
	SendErrorResponse(c, http.StatusConflict, models.ErrCodeInvalidState, message, details)
}

// SendGatewayError sends a 502 Bad Gateway error
func SendGatewayError(c *gin.Context, message, details string) {
	SendErrorResponse(c, http.StatusBadGateway, models.ErrCodeGatewayError, message, details)
}

// SendInternalServerError sends a 500 Internal Server Error
func SendInternalServerError(c *gin.Context, message, details string) {
	SendErrorResponse(c, http.StatusInternalServerError, models.ErrCodeInternalError, message, details)
}

// SendBodyTooLargeError sends a 413 Request Entity Too Large error
func SendBodyTooLargeError(c *gin.Context, limit int64) {
	SendErrorResponse(c, http.StatusRequestEntityTooLarge, models.ErrCodeBodyTooLarge,
		"Request body too large", fmt.Sprintf("limit is %d bytes", limit))
}

// SendValidationError sends a validation error response
func SendValidationError(c *gin.Context, details string) {
	SendErrorResponse(c, http.StatusBadRequest, models.ErrCodeValidationError, "Validation failed", details)
}
