package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpirySweeper periodically expires consents and reports stalled fetch requests
type ExpirySweeper struct {
	consents *ConsentService
	fetches  *FetchService
	interval time.Duration
	logger   *logrus.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewExpirySweeper creates a new sweeper
func NewExpirySweeper(consents *ConsentService, fetches *FetchService, interval time.Duration, logger *logrus.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		consents: consents,
		fetches:  fetches,
		interval: interval,
		logger:   logger,
	}
}

// Start runs a sweep every interval in a background goroutine. Call it once.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.WithField("interval", s.interval.String()).Info("Expiry sweeper started")

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Expiry sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.WithError(err).Error("Expiry sweep failed")
				}
			}
		}
	}()
}

// Stop stops the background goroutine and waits for it to exit
func (s *ExpirySweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// RunOnce runs one expiry sweep followed by the stalled fetch report
func (s *ExpirySweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	result, err := s.consents.SweepExpired(ctx)
	if err != nil {
		return result, err
	}

	if s.fetches != nil {
		if _, err := s.fetches.ReportStalled(ctx); err != nil {
			s.logger.WithError(err).Error("Stalled fetch report failed")
		}
	}
	return result, nil
}
