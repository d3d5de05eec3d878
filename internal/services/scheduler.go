// internal/services/scheduler.go
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/civilaviation/fop-backend/internal/config"
)

// Scheduler runs the background jobs: redelivery of undispatched outbox
// events and the document expiry sweep, which also raises expiring-soon
// warnings.
type Scheduler struct {
	mu sync.Mutex

	applications  *ApplicationService
	notifications *NotificationService

	outboxInterval time.Duration
	expiryInterval time.Duration
	batchSize      int

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewScheduler(applications *ApplicationService, notifications *NotificationService, cfg config.FeesConfig) *Scheduler {
	s := &Scheduler{
		applications:   applications,
		notifications:  notifications,
		outboxInterval: time.Duration(cfg.OutboxPollSecond) * time.Second,
		expiryInterval: time.Duration(cfg.ExpirySweepMinute) * time.Minute,
		batchSize:      cfg.OutboxBatchSize,
	}
	if s.outboxInterval <= 0 {
		s.outboxInterval = 30 * time.Second
	}
	if s.expiryInterval <= 0 {
		s.expiryInterval = time.Hour
	}
	if s.batchSize <= 0 {
		s.batchSize = 100
	}
	return s
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	logrus.WithFields(logrus.Fields{
		"outbox_interval": s.outboxInterval.String(),
		"expiry_interval": s.expiryInterval.String(),
	}).Info("Background scheduler started")

	s.loop(ctx, s.outboxInterval, s.RunOutbox)
	s.loop(ctx, s.expiryInterval, s.RunExpirySweep)
	return nil
}

// Stop cancels the jobs and waits for the running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logrus.Info("Background scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, job func(context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		job(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				job(ctx)
			}
		}
	}()
}

// RunOutbox redelivers events whose dispatch failed or never ran.
func (s *Scheduler) RunOutbox(ctx context.Context) {
	handled, err := s.notifications.DispatchPending(ctx, s.batchSize)
	if err != nil {
		logrus.WithError(err).WithField("handled", handled).Warn("Outbox redelivery incomplete")
		return
	}
	if handled > 0 {
		logrus.WithField("handled", handled).Info("Outbox events redelivered")
	}
}

func (s *Scheduler) RunExpirySweep(ctx context.Context) {
	if _, err := s.applications.ExpireDocuments(ctx); err != nil {
		logrus.WithError(err).Error("Document expiry sweep failed")
	}
	if _, err := s.applications.WarnExpiringDocuments(ctx); err != nil {
		logrus.WithError(err).Error("Document expiry warning sweep failed")
	}
}
