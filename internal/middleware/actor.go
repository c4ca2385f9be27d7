package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wso2/abdm-integration-api/internal/models"
)

// Actor headers set by the fronting practice-management gateway
const (
	ActorIDHeader   = "X-Actor-ID"
	ActorTypeHeader = "X-Actor-Type"
)

// ActorFromRequest builds the calling actor from request headers.
// A missing actor type defaults to DOCTOR.
func ActorFromRequest(c *gin.Context) models.Actor {
	actorType := models.ActorType(strings.ToUpper(strings.TrimSpace(c.GetHeader(ActorTypeHeader))))
	if actorType == "" {
		actorType = models.ActorTypeDoctor
	}
	return models.Actor{
		ID:        strings.TrimSpace(c.GetHeader(ActorIDHeader)),
		Type:      actorType,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
