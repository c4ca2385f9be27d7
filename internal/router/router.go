package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wso2/abdm-integration-api/internal/gateway"
	"github.com/wso2/abdm-integration-api/internal/handlers"
	"github.com/wso2/abdm-integration-api/internal/metrics"
	"github.com/wso2/abdm-integration-api/internal/middleware"
)

// HealthChecker reports whether the backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options are the handlers and switches the router is built from
type Options struct {
	Consents      *handlers.ConsentHandler
	HealthRecords *handlers.HealthRecordHandler
	Callbacks     *handlers.CallbackHandler
	Health        HealthChecker

	// CallbackSigner enables signature checks on callback routes when set
	CallbackSigner  gateway.CredentialResolver
	// CallbackMaxBody bounds the body read for signature checks
	CallbackMaxBody int64

	MetricsEnabled bool
	MetricsPath    string
}

// SetupRouter configures all API routes
func SetupRouter(opts Options) *gin.Engine {
	router := gin.Default()
	router.Use(middleware.CorrelationID())
	if opts.MetricsEnabled {
		router.Use(metrics.Middleware())
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if opts.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := opts.Health.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(metrics.Handler()))
	}

	// Network callbacks
	callbacks := router.Group("/callbacks")
	if opts.CallbackSigner != nil {
		callbacks.Use(middleware.CallbackSignature(opts.CallbackSigner, opts.CallbackMaxBody))
	}
	{
		callbacks.POST("/consent", opts.Callbacks.ConsentCallback)
		callbacks.POST("/health-information", opts.Callbacks.HealthInfoCallback)
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Consent request routes
		consents := v1.Group("/consent-requests")
		{
			consents.POST("", opts.Consents.CreateConsentRequest)
			consents.GET("", opts.Consents.ListConsentRequests)
			consents.GET("/:id", opts.Consents.GetConsentRequest)
			consents.POST("/:id/revoke", opts.Consents.RevokeConsent)
			consents.POST("/:id/resubmit", opts.Consents.ResubmitConsentRequest)
			consents.GET("/:id/audit", opts.Consents.GetAuditTrail)
		}

		// Health record routes
		records := v1.Group("/health-records")
		{
			records.POST("/fetch", opts.HealthRecords.FetchHealthRecords)
			records.GET("/fetch/:id/status", opts.HealthRecords.GetFetchStatus)
			records.GET("/fetch/:id/log", opts.HealthRecords.GetProcessingLog)
			records.POST("/fetch/:id/cancel", opts.HealthRecords.CancelFetchRequest)

			records.GET("", opts.HealthRecords.SearchRecords)
			records.GET("/:id", opts.HealthRecords.GetRecord)
			records.POST("/:id/archive", opts.HealthRecords.ArchiveRecord)
			records.DELETE("/:id", opts.HealthRecords.DeleteRecord)
			records.GET("/:id/access-log", opts.HealthRecords.GetAccessLog)
		}
	}

	return router
}
