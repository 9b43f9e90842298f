package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/its-me-navee/e4square/internal/config"
	"github.com/its-me-navee/e4square/internal/obslog"
	"github.com/its-me-navee/e4square/internal/session"
	"go.uber.org/zap"
)

// Archiver hands finished sessions to a Sink on a background goroutine so the move
// path never waits on storage. A nil *Archiver accepts and drops everything.
type Archiver struct {
	sink    Sink
	queue   chan session.Session
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

func NewArchiver(sink Sink, buffer int) *Archiver {
	if buffer <= 0 {
		buffer = 128
	}
	a := &Archiver{
		sink:    sink,
		queue:   make(chan session.Session, buffer),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Submit queues s; it reports false when the archiver is closed or the queue is full.
func (a *Archiver) Submit(s session.Session) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- s:
		return true
	default:
		obslog.L().Warn("archive_queue_full", zap.String("room_id", s.RoomID))
		return false
	}
}

func (a *Archiver) run() {
	defer close(a.done)
	for s := range a.queue {
		rec, err := FromSession(s)
		if err != nil {
			obslog.L().Warn("archive_skip", zap.String("room_id", s.RoomID), zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err = a.sink.Save(ctx, rec)
		cancel()
		if err != nil {
			obslog.L().Error("archive_save_failed", zap.String("game_id", rec.ID), zap.Error(err))
			continue
		}
		obslog.L().Info("archive_saved", zap.String("game_id", rec.ID), zap.String("result", rec.Result), zap.Int("plies", len(rec.MovesUCI)))
	}
}

// Close stops accepting work, drains the queue and closes the sink.
func (a *Archiver) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.sink.Close()
}

// SinkFromConfig opens every archive backend configured in cfg. It returns nil
// when none is.
func SinkFromConfig(ctx context.Context, cfg *config.AppConfig) (Sink, error) {
	var sinks Multi
	if cfg.RedisURL != "" {
		rs, err := NewRedisSink(ctx, cfg.RedisURL, cfg.ArchiveTTL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, rs)
	}
	if cfg.DatabaseURL != "" {
		ps, err := NewPostgresSink(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Join(err, sinks.Close())
		}
		sinks = append(sinks, ps)
	}
	switch len(sinks) {
	case 0:
		return nil, nil
	case 1:
		return sinks[0], nil
	}
	return sinks, nil
}
