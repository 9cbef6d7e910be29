package market

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// MaintainerConfig holds maintainer configuration.
type MaintainerConfig struct {
	Interval time.Duration // Refresh interval (default: 15m)
}

// DefaultMaintainerConfig returns sensible defaults.
func DefaultMaintainerConfig() MaintainerConfig {
	return MaintainerConfig{Interval: 15 * time.Minute}
}

// Maintainer periodically re-projects the listing book so the floor top-up
// runs even when no client is asking for listings.
type Maintainer struct {
	cfg       MaintainerConfig
	projector *Projector
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMaintainer creates a Maintainer.
func NewMaintainer(cfg MaintainerConfig, projector *Projector, logger *slog.Logger) *Maintainer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultMaintainerConfig().Interval
	}
	return &Maintainer{cfg: cfg, projector: projector, logger: logger}
}

// Start begins the refresh loop.
func (m *Maintainer) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("listing maintainer started", "interval", m.cfg.Interval)
	return nil
}

// Stop gracefully shuts down the maintainer.
func (m *Maintainer) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("listing maintainer stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main refresh loop.
func (m *Maintainer) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// Refresh immediately on start.
	m.refresh()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.refresh()
		}
	}
}

func (m *Maintainer) refresh() {
	start := time.Now()
	listings, err := m.projector.Listings(m.ctx)
	if err != nil {
		m.logger.Warn("listing refresh failed", "err", err)
		return
	}
	m.logger.Info("listing book refreshed",
		"listings", len(listings),
		"duration", time.Since(start),
	)
}
