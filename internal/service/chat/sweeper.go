package chat

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper periodically evicts idle sessions.
type Sweeper struct {
	cron   *cron.Cron
	svc    *Service
	logger *zap.Logger
}

// NewSweeper schedules EvictIdle with a cron spec such as "@every 5m".
func NewSweeper(svc *Service, schedule string, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		cron:   cron.New(),
		svc:    svc,
		logger: logger.Named("sweeper"),
	}
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("session sweeper started")
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("session sweeper stopped")
}

func (s *Sweeper) sweep() {
	if n := s.svc.EvictIdle(); n > 0 {
		s.logger.Info("idle sessions evicted", zap.Int("count", n), zap.Int("remaining", s.svc.Len()))
	}
}
