package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/store"
)

// syncTimeout is the maximum time allowed for one user's full sync pass.
const syncTimeout = 2 * time.Minute

// Poller runs background sync passes over every user that has at least
// one active mailbox.
type Poller struct {
	store    store.Store
	engine   *Engine
	logger   *zap.Logger
	interval time.Duration

	triggerCh chan string
	stopCh    chan struct{}

	mu      gosync.Mutex
	running bool
}

// NewPoller creates a poller that syncs on the given interval.
func NewPoller(s store.Store, engine *Engine, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{
		store:     s,
		engine:    engine,
		logger:    logger,
		interval:  interval,
		triggerCh: make(chan string, 16),
		stopCh:    make(chan struct{}),
	}
}

// Start launches the polling goroutine. Calling Start twice is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	go p.run()
}

// Stop halts the polling goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Trigger queues an immediate sync for one user without blocking.
func (p *Poller) Trigger(userID string) {
	select {
	case p.triggerCh <- userID:
	default:
		// Channel full; the scheduled pass will pick the user up.
	}
}

func (p *Poller) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial pass on startup.
	p.syncAllUsers()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.syncAllUsers()
		case userID := <-p.triggerCh:
			p.syncUser(userID)
		}
	}
}

// syncAllUsers runs one pass over every user with active mailboxes.
func (p *Poller) syncAllUsers() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	userIDs, err := p.store.ListSyncUserIDs(ctx)
	cancel()
	if err != nil {
		p.logger.Error("listing users to sync", zap.Error(err))
		return
	}

	for _, userID := range userIDs {
		p.syncUser(userID)
	}
}

func (p *Poller) syncUser(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	summary, err := p.engine.SyncAll(ctx, userID)
	if err != nil {
		p.logger.Error("background sync failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	p.logger.Info("background sync complete",
		zap.String("user_id", userID),
		zap.Int("mailboxes", len(summary.Mailboxes)),
		zap.Int("synced", summary.Synced),
		zap.Int("inserted", summary.Inserted))
}
