package reaper

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ScanDock/internal/broker/messages"
	"github.com/BearBump/ScanDock/internal/models"
)

type Repository interface {
	CancelStaleSessions(ctx context.Context, idleBefore time.Time, limit int) ([]*models.BatchSession, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Reaper отменяет брошенные сессии: активные/приостановленные без активности
// дольше idleTimeout переводятся в cancelled пачками.
type Reaper struct {
	repo     Repository
	producer Producer
	topic    string

	interval    time.Duration
	idleTimeout time.Duration
	batchSize   int

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCancelled      atomic.Int64
	totalCycles         atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, producer Producer, topic string) *Reaper {
	return &Reaper{
		repo:     repo,
		producer: producer,
		topic:    topic,

		interval:    60 * time.Second,
		idleTimeout: 30 * time.Minute,
		batchSize:   100,

		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Reaper) WithSettings(interval, idleTimeout time.Duration, batchSize int) *Reaper {
	if interval > 0 {
		r.interval = interval
	}
	if idleTimeout > 0 {
		r.idleTimeout = idleTimeout
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	return r
}

// Trigger forces an immediate reap cycle (best-effort, non-blocking).
func (r *Reaper) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles    int64      `json:"totalCycles"`
	TotalCancelled int64      `json:"totalCancelled"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Reaper) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalCycles:    r.totalCycles.Load(),
		TotalCancelled: r.totalCancelled.Load(),
		TotalErrors:    r.totalErrors.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runOnce(ctx)
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Reaper) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	r.lastCycleUnixNano.Store(now.UnixNano())
	r.totalCycles.Add(1)

	// Выгребаем пачками, пока есть что отменять.
	for {
		cancelled, err := r.repo.CancelStaleSessions(ctx, now.Add(-r.idleTimeout), r.batchSize)
		if err != nil {
			slog.Error("cancel stale sessions", "error", err.Error())
			r.totalErrors.Add(1)
			r.lastErrorMu.Lock()
			r.lastError = err.Error()
			r.lastErrorMu.Unlock()
			return
		}
		if len(cancelled) == 0 {
			return
		}
		r.totalCancelled.Add(int64(len(cancelled)))

		for _, sess := range cancelled {
			slog.Info("stale session cancelled",
				"session_id", sess.ID,
				"user_id", sess.UserID,
				"idle_since", sess.LastActivityAt,
			)
			r.publish(ctx, sess, now)
		}

		if len(cancelled) < r.batchSize {
			return
		}
	}
}

func (r *Reaper) publish(ctx context.Context, sess *models.BatchSession, now time.Time) {
	if r.producer == nil || r.topic == "" {
		return
	}
	b, err := json.Marshal(messages.SessionCancelled{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		PackagesScanned: sess.PackagesScanned,
		IdleSince:       sess.LastActivityAt,
		CancelledAt:     now,
	})
	if err != nil {
		slog.Warn("marshal session cancelled", "session_id", sess.ID, "error", err.Error())
		return
	}
	if err := r.producer.Publish(ctx, r.topic, []byte(sess.ID), b); err != nil {
		slog.Warn("publish session cancelled", "session_id", sess.ID, "error", err.Error())
	}
}
