package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"chatwire/internal/constants"
	"chatwire/internal/metrics"
)

// PendingMonitor periodically sweeps the message store for optimistic
// messages the server never confirmed and marks them failed so the user
// sees the loss instead of a forever-spinning bubble.
type PendingMonitor struct {
	store      *MessageStore
	interval   time.Duration
	staleAfter time.Duration
	logger     *logrus.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPendingMonitor creates a monitor. Zero durations fall back to the
// defaults.
func NewPendingMonitor(store *MessageStore, interval, staleAfter time.Duration, logger *logrus.Logger) *PendingMonitor {
	if interval == 0 {
		interval = time.Duration(constants.DefaultPendingCheckIntervalSec) * time.Second
	}
	if staleAfter == 0 {
		staleAfter = time.Duration(constants.DefaultPendingStaleSec) * time.Second
	}
	return &PendingMonitor{
		store:      store,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Start launches the sweep loop.
func (m *PendingMonitor) Start(ctx context.Context) {
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.logger.WithField("interval", m.interval).Info("Pending message monitor started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (m *PendingMonitor) Stop() {
	if m.stopCh == nil {
		return
	}
	close(m.stopCh)
	<-m.doneCh
	m.stopCh = nil
}

func (m *PendingMonitor) sweep() {
	cutoff := time.Now().Add(-m.staleAfter)
	stale := m.store.PendingOlderThan(cutoff)
	metrics.SetGauge("messages_pending_stale", float64(len(stale)), nil, "optimistic messages past the confirmation deadline")
	for _, p := range stale {
		m.logger.WithFields(logrus.Fields{
			"temp_id": p.TempID,
			"age":     time.Since(p.CreatedAt).Truncate(time.Second),
		}).Warn("Marking unconfirmed message as failed")
		m.store.MarkFailed(p.TempID, "confirmation timeout")
	}
}
