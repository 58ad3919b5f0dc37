package websocket

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/usecase"
)

// WidgetCleanupService closes widgets nobody has used for a while
type WidgetCleanupService struct {
	widgets     *usecase.WidgetRegistry
	idleTimeout time.Duration
	interval    time.Duration
	clock       clock.Clock
	logger      *zap.Logger
	stopChan    chan struct{}
}

// NewWidgetCleanupService creates a new widget cleanup service. It checks every
// minute, or every idleTimeout when that is shorter.
func NewWidgetCleanupService(widgets *usecase.WidgetRegistry, idleTimeout time.Duration, clk clock.Clock, logger *zap.Logger) *WidgetCleanupService {
	if clk == nil {
		clk = clock.New()
	}
	interval := time.Minute
	if idleTimeout > 0 && idleTimeout < interval {
		interval = idleTimeout
	}

	return &WidgetCleanupService{
		widgets:     widgets,
		idleTimeout: idleTimeout,
		interval:    interval,
		clock:       clk,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *WidgetCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Widget cleanup service started", zap.Duration("idleTimeout", s.idleTimeout))
}

// Stop gracefully stops the cleanup service
func (s *WidgetCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Widget cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *WidgetCleanupService) cleanupLoop() {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup removes idle widgets
func (s *WidgetCleanupService) runCleanup() {
	removed := s.widgets.ReapIdle(s.clock.Now(), s.idleTimeout)
	if removed > 0 {
		s.logger.Info("Removed idle widgets",
			zap.Int("removed", removed),
			zap.Int("remaining", s.widgets.Len()))
	}
}
