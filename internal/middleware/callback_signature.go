package middleware

import (
	"bytes"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/wso2/abdm-integration-api/internal/gateway"
	"github.com/wso2/abdm-integration-api/internal/utils"
)

// Signature headers on inbound network callbacks
const (
	TimestampHeader = "X-Timestamp"
	SignatureHeader = "X-Signature"
)

// CallbackSignature rejects callbacks whose X-Signature is not the HMAC of
// X-Timestamp and the body under the gateway client secret. Bodies over maxBody
// bytes are rejected; the body is restored for the handler.
func CallbackSignature(creds gateway.CredentialResolver, maxBody int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		timestamp := c.GetHeader(TimestampHeader)
		signature := c.GetHeader(SignatureHeader)
		if timestamp == "" || signature == "" {
			utils.SendUnauthorizedError(c, "Callback signature headers are required")
			c.Abort()
			return
		}

		body, err := utils.ReadBody(c, maxBody)
		if err != nil {
			utils.SendBodyReadError(c, err)
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		secret, err := creds.ClientSecret(c.Request.Context())
		if err != nil {
			utils.SendInternalServerError(c, "Callback signature cannot be verified", "")
			c.Abort()
			return
		}

		if !gateway.VerifySignature(secret, timestamp, body, signature) {
			utils.SendUnauthorizedError(c, "Callback signature is invalid")
			c.Abort()
			return
		}
		c.Next()
	}
}
