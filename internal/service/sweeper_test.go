package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wso2/abdm-integration-api/internal/models"
)

func TestExpirySweeper_RunOnce(t *testing.T) {
	env := newTestEnv()
	env.requests.put(models.ConsentRequest{ConsentRequestID: "cr-old", PatientID: "p", Status: models.ConsentRequested, ExpiryTime: env.nowMillis() - 1})
	sweeper := NewExpirySweeper(env.consents, env.fetch, time.Hour, env.logger)

	result, err := sweeper.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.RequestsExpired)
	stored, _ := env.requests.GetByID(context.Background(), "cr-old")
	assert.Equal(t, models.ConsentExpired, stored.Status)
}

func TestExpirySweeper_StartStop(t *testing.T) {
	env := newTestEnv()
	env.requests.put(models.ConsentRequest{ConsentRequestID: "cr-old", PatientID: "p", Status: models.ConsentRequested, ExpiryTime: env.nowMillis() - 1})
	sweeper := NewExpirySweeper(env.consents, nil, 10*time.Millisecond, env.logger)

	sweeper.Start(context.Background())

	assert.Eventually(t, func() bool {
		stored, err := env.requests.GetByID(context.Background(), "cr-old")
		return err == nil && stored.Status == models.ConsentExpired
	}, 2*time.Second, 10*time.Millisecond)

	sweeper.Stop()
}
