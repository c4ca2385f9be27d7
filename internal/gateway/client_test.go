package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/abdm-integration-api/internal/config"
	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

const testSecret = "s3cret"

type fakeGateway struct {
	server   *httptest.Server
	sessions int32
	calls    int32
	handler  func(w http.ResponseWriter, r *http.Request, body []byte)
}

func newFakeGateway(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body []byte)) *fakeGateway {
	t.Helper()
	fg := &fakeGateway{handler: handler}

	mux := http.NewServeMux()
	mux.HandleFunc("/v0.5/sessions", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fg.sessions, 1)
		var req sessionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ClientSecret != testSecret {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, _ := token.SignedString([]byte("gateway-key"))
		_ = json.NewEncoder(w).Encode(sessionResponse{AccessToken: signed, ExpiresIn: 60})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fg.calls, 1)
		body, _ := io.ReadAll(r.Body)
		fg.handler(w, r, body)
	})

	fg.server = httptest.NewServer(mux)
	t.Cleanup(fg.server.Close)
	return fg
}

func newTestClient(baseURL string, maxAttempts int) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.GatewayConfig{
		BaseURL:  baseURL,
		CMID:     "sbx",
		HIUID:    "hiu-1",
		ClientID: "client-1",
		Timeout:  5 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:     maxAttempts,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2,
		},
		Endpoints: config.GatewayEndpoints{
			Session:            "/v0.5/sessions",
			ConsentRequestInit: "/v0.5/consent-requests/init",
			ConsentRevoke:      "/v0.5/consents/revoke",
			HealthInfoRequest:  "/v0.5/health-information/cm/request",
		},
	}
	callbacks := &config.CallbackConfig{BaseURL: "https://hiu.example.org"}
	return NewClient(cfg, callbacks, StaticCredentials(testSecret), utils.SystemClock{}, logger)
}

func sampleConsentRequest() *models.ConsentRequest {
	return &models.ConsentRequest{
		ConsentRequestID: "CR-1",
		PatientID:        "patient@sbx",
		DoctorID:         "DOC-1",
		PurposeCode:      "CAREMGT",
		PurposeText:      "Care Management",
		HITypes:          models.StringList{models.HITypePrescription},
		DateRangeFrom:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		DateRangeTo:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC).UnixMilli(),
		ExpiryTime:       time.Now().Add(24 * time.Hour).UnixMilli(),
	}
}

func TestRequestConsent_SignsAndReturnsExternalID(t *testing.T) {
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		assert.Equal(t, "/v0.5/consent-requests/init", r.URL.Path)
		assert.Equal(t, "sbx", r.Header.Get("X-CM-ID"))
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		assert.Equal(t, "corr-1", r.Header.Get("X-Correlation-ID"))
		assert.True(t, VerifySignature(testSecret, r.Header.Get("X-Timestamp"), body, r.Header.Get("X-Signature")))

		var sent ConsentInitRequest
		assert.NoError(t, json.Unmarshal(body, &sent))
		assert.Equal(t, "patient@sbx", sent.Consent.Patient.ID)
		assert.Equal(t, "hiu-1", sent.Consent.HIU.ID)
		assert.Equal(t, "2024-01-01T00:00:00.000Z", sent.Consent.Permission.DateRange.From)
		assert.Equal(t, "https://hiu.example.org/callbacks/consent", sent.CallbackURL)

		_ = json.NewEncoder(w).Encode(ConsentInitResponse{ConsentRequest: &Reference{ID: "EXT-1"}})
	})

	client := newTestClient(fg.server.URL, 3)
	ctx := utils.WithCorrelationID(context.Background(), "corr-1")

	externalID, err := client.RequestConsent(ctx, sampleConsentRequest())
	require.NoError(t, err)
	assert.Equal(t, "EXT-1", externalID)
}

func TestRequestConsent_AsyncAckFallsBackToRequestID(t *testing.T) {
	var sentRequestID string
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		var sent ConsentInitRequest
		_ = json.Unmarshal(body, &sent)
		sentRequestID = sent.RequestID
		w.WriteHeader(http.StatusAccepted)
	})

	externalID, err := newTestClient(fg.server.URL, 3).RequestConsent(context.Background(), sampleConsentRequest())
	require.NoError(t, err)
	assert.Equal(t, sentRequestID, externalID)
}

func TestPost_RetriesServerErrors(t *testing.T) {
	var served int32
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		if atomic.AddInt32(&served, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(ConsentInitResponse{ConsentRequest: &Reference{ID: "EXT-3"}})
	})

	externalID, err := newTestClient(fg.server.URL, 3).RequestConsent(context.Background(), sampleConsentRequest())
	require.NoError(t, err)
	assert.Equal(t, "EXT-3", externalID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fg.calls))
}

func TestPost_ExhaustedRetriesReturnGatewayError(t *testing.T) {
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := newTestClient(fg.server.URL, 3).RequestConsent(context.Background(), sampleConsentRequest())

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, OperationConsentInit, gwErr.Operation)
	assert.Equal(t, 3, gwErr.Attempts)
	assert.Equal(t, http.StatusBadGateway, gwErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&fg.calls))
}

func TestPost_ClientErrorIsNotRetried(t *testing.T) {
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":1000,"message":"invalid purpose"}}`))
	})

	_, err := newTestClient(fg.server.URL, 5).RequestConsent(context.Background(), sampleConsentRequest())

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, 1, gwErr.Attempts)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Contains(t, gwErr.Message, "invalid purpose")
}

func TestPost_UnauthorizedRenewsSession(t *testing.T) {
	var served int32
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		if atomic.AddInt32(&served, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	client := newTestClient(fg.server.URL, 3)
	err := client.RevokeConsent(context.Background(), sampleConsentRequest(), []string{"ART-1"}, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fg.sessions))
}

func TestSession_IsReused(t *testing.T) {
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusAccepted)
	})

	client := newTestClient(fg.server.URL, 1)
	for i := 0; i < 3; i++ {
		require.NoError(t, client.RevokeConsent(context.Background(), sampleConsentRequest(), nil, "reason"))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fg.sessions))
}

func TestSession_BadCredentialsFailWithoutRetry(t *testing.T) {
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusAccepted)
	})

	client := newTestClient(fg.server.URL, 3)
	client.creds = StaticCredentials("wrong")

	err := client.RevokeConsent(context.Background(), sampleConsentRequest(), nil, "reason")

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fg.sessions))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fg.calls))
}

func TestRevokeConsent_UsesExternalRequestID(t *testing.T) {
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		var sent ConsentRevokeRequest
		assert.NoError(t, json.Unmarshal(body, &sent))
		assert.Equal(t, "EXT-9", sent.ConsentRequestID)
		if assert.Len(t, sent.Consents, 1) {
			assert.Equal(t, "ART-EXT-1", sent.Consents[0].ID)
		}
		assert.Equal(t, "patient request", sent.Reason)
		w.WriteHeader(http.StatusAccepted)
	})

	req := sampleConsentRequest()
	ext := "EXT-9"
	req.ExternalRequestID = &ext

	err := newTestClient(fg.server.URL, 1).RevokeConsent(context.Background(), req, []string{"ART-EXT-1"}, "patient request")
	assert.NoError(t, err)
}

func TestRequestHealthInformation(t *testing.T) {
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		var sent HealthInfoRequest
		assert.NoError(t, json.Unmarshal(body, &sent))
		assert.Equal(t, "ART-EXT-1", sent.HIRequest.Consent.ID)
		assert.Equal(t, "https://hiu.example.org/callbacks/health-information", sent.HIRequest.DataPushURL)
		assert.Equal(t, "nonce-1", sent.HIRequest.KeyMaterial.Nonce)
		_, _ = w.Write([]byte(`{"hiRequest":{"transactionId":"TXN-1","sessionStatus":"REQUESTED"}}`))
	})

	fetch := &models.HealthRecordFetchRequest{
		FetchRequestID: "HFR-1",
		HITypes:        models.StringList{models.HITypePrescription},
		DateRangeFrom:  1,
		DateRangeTo:    2,
	}

	txnID, err := newTestClient(fg.server.URL, 1).RequestHealthInformation(context.Background(), fetch, "ART-EXT-1",
		models.KeyMaterial{CryptoAlg: "AES-256-GCM", Nonce: "nonce-1"})
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", txnID)
}

func TestPost_ContextCancelStopsRetries(t *testing.T) {
	fg := newFakeGateway(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := newTestClient(fg.server.URL, 50)
	client.config.Retry.InitialInterval = 50 * time.Millisecond
	client.config.Retry.MaxInterval = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	_, err := client.RequestConsent(ctx, sampleConsentRequest())

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Less(t, gwErr.Attempts, 50)
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	exp := now.Add(10 * time.Minute)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := token.SignedString([]byte("k"))
	require.NoError(t, err)

	assert.Equal(t, exp.Unix(), tokenExpiry(signed, 60, now).Unix())
	assert.Equal(t, now.Add(60*time.Second), tokenExpiry("opaque-token", 60, now))
	assert.Equal(t, now.Add(defaultTokenLifetime), tokenExpiry("opaque-token", 0, now))
}

func TestSign(t *testing.T) {
	sig := Sign("k", "2025-01-01T00:00:00.000Z", []byte(`{"a":1}`))
	assert.Len(t, sig, 64)
	assert.True(t, VerifySignature("k", "2025-01-01T00:00:00.000Z", []byte(`{"a":1}`), sig))
	assert.False(t, VerifySignature("k", "2025-01-01T00:00:00.001Z", []byte(`{"a":1}`), sig))
}
