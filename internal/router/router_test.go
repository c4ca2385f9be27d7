package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/wso2/abdm-integration-api/internal/gateway"
	"github.com/wso2/abdm-integration-api/internal/handlers"
	"github.com/wso2/abdm-integration-api/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

type stubReceiver struct{ calls int }

func (s *stubReceiver) Accept(context.Context, models.CallbackKind, []byte) (*models.CallbackAck, error) {
	s.calls++
	return &models.CallbackAck{Status: "ACCEPTED"}, nil
}

func testOptions(receiver *stubReceiver) Options {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return Options{
		Consents:      handlers.NewConsentHandler(nil),
		HealthRecords: handlers.NewHealthRecordHandler(nil, nil),
		Callbacks:     handlers.NewCallbackHandler(receiver, 1<<20, logger),
		Health:        stubHealth{},
	}
}

func TestHealthEndpoint(t *testing.T) {
	opts := testOptions(&stubReceiver{})
	w := httptest.NewRecorder()
	SetupRouter(opts).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))

	opts.Health = stubHealth{err: errors.New("connection refused")}
	w = httptest.NewRecorder()
	SetupRouter(opts).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestCallbackRoutes_SignatureEnforcement(t *testing.T) {
	body := `{"requestId":"cb-1"}`

	receiver := &stubReceiver{}
	w := httptest.NewRecorder()
	SetupRouter(testOptions(receiver)).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/callbacks/consent", strings.NewReader(body)))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, receiver.calls)

	receiver = &stubReceiver{}
	opts := testOptions(receiver)
	opts.CallbackSigner = gateway.StaticCredentials("s3cret")
	w = httptest.NewRecorder()
	SetupRouter(opts).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/callbacks/health-information", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, receiver.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	opts := testOptions(&stubReceiver{})
	opts.MetricsEnabled = true
	w := httptest.NewRecorder()
	SetupRouter(opts).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
