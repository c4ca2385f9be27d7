package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/wso2/abdm-integration-api/internal/models"
	"github.com/wso2/abdm-integration-api/pkg/utils"
)

// RequestConsent submits a consent request to the network and returns the
// network's consent request ID. When the gateway acknowledges asynchronously
// without an ID, the sent request ID is used; the consent notification
// carries it back.
func (c *Client) RequestConsent(ctx context.Context, req *models.ConsentRequest) (string, error) {
	hips := make([]Reference, 0, len(req.HIPIDs))
	for _, id := range req.HIPIDs {
		hips = append(hips, Reference{ID: id})
	}

	payload := &ConsentInitRequest{
		RequestID: uuid.New().String(),
		Timestamp: utils.FormatMillis(c.clock.Now().UnixMilli()),
		Consent: ConsentDetail{
			Purpose: Purpose{Code: req.PurposeCode, Text: req.PurposeText},
			Patient: Reference{ID: req.PatientID},
			HIU:     Reference{ID: c.config.HIUID},
			HIPs:    hips,
			Requester: Requester{
				Identifier: Identifier{Type: "REGNO", Value: req.DoctorID},
			},
			HITypes: req.HITypes,
			Permission: models.ConsentPermission{
				AccessMode: "VIEW",
				DateRange: models.PermissionRange{
					From: utils.FormatMillis(req.DateRangeFrom),
					To:   utils.FormatMillis(req.DateRangeTo),
				},
				DataEraseAt: utils.FormatMillis(req.ExpiryTime),
				Frequency:   &models.ConsentFrequency{Unit: "HOUR", Value: 1, Repeats: 0},
			},
		},
		CallbackURL: c.callbacks.ConsentCallbackURL(),
	}

	var resp ConsentInitResponse
	if err := c.post(ctx, OperationConsentInit, c.config.Endpoints.ConsentRequestInit, payload, &resp); err != nil {
		return "", err
	}

	if resp.ConsentRequest != nil && resp.ConsentRequest.ID != "" {
		return resp.ConsentRequest.ID, nil
	}
	return payload.RequestID, nil
}

// RevokeConsent notifies the network that a consent request and its artifacts are revoked
func (c *Client) RevokeConsent(ctx context.Context, req *models.ConsentRequest, artifactIDs []string, reason string) error {
	consents := make([]Reference, 0, len(artifactIDs))
	for _, id := range artifactIDs {
		consents = append(consents, Reference{ID: id})
	}

	externalID := req.ConsentRequestID
	if req.ExternalRequestID != nil {
		externalID = *req.ExternalRequestID
	}

	payload := &ConsentRevokeRequest{
		RequestID:        uuid.New().String(),
		Timestamp:        utils.FormatMillis(c.clock.Now().UnixMilli()),
		ConsentRequestID: externalID,
		Consents:         consents,
		Reason:           reason,
	}

	return c.post(ctx, OperationConsentRevoke, c.config.Endpoints.ConsentRevoke, payload, nil)
}

// RequestHealthInformation asks the network to push health information under an
// artifact and returns the transaction ID deliveries will carry
func (c *Client) RequestHealthInformation(ctx context.Context, fetch *models.HealthRecordFetchRequest, artifactExternalID string, keyMaterial models.KeyMaterial) (string, error) {
	payload := &HealthInfoRequest{
		RequestID: uuid.New().String(),
		Timestamp: utils.FormatMillis(c.clock.Now().UnixMilli()),
		HIRequest: HIRequestBody{
			Consent: Reference{ID: artifactExternalID},
			HITypes: fetch.HITypes,
			DateRange: models.PermissionRange{
				From: utils.FormatMillis(fetch.DateRangeFrom),
				To:   utils.FormatMillis(fetch.DateRangeTo),
			},
			DataPushURL: c.callbacks.HealthInfoCallbackURL(),
			KeyMaterial: keyMaterial,
		},
	}

	var resp HealthInfoResponse
	if err := c.post(ctx, OperationHealthInfoRequest, c.config.Endpoints.HealthInfoRequest, payload, &resp); err != nil {
		return "", err
	}

	if resp.HIRequest != nil && resp.HIRequest.TransactionID != "" {
		return resp.HIRequest.TransactionID, nil
	}
	return payload.RequestID, nil
}
