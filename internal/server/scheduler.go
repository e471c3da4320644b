package server

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yairfalse/restitch/internal/engine"
	"github.com/yairfalse/restitch/internal/logger"
	"github.com/yairfalse/restitch/pkg/types"
)

// Scheduler runs automatic full snapshots for configured credentials on
// a cron expression. Automatic runs count as pre-confirmed: at the
// retention cap the oldest snapshot is evicted without prompting.
type Scheduler struct {
	cron        *cron.Cron
	engine      *engine.Engine
	credentials []string
	log         logger.Logger
}

// NewScheduler creates a scheduler; spec is a standard 5-field cron
// expression.
func NewScheduler(spec string, credentials []string, eng *engine.Engine, log logger.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:        cron.New(),
		engine:      eng,
		credentials: credentials,
		log:         log.WithField("component", "scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.runAll); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins scheduling. Non-blocking.
func (s *Scheduler) Start() {
	s.log.WithField("accounts", len(s.credentials)).Info("snapshot scheduler started")
	s.cron.Start()
}

// Stop halts scheduling and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) runAll() {
	for i, credential := range s.credentials {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		snap, err := s.engine.ConfirmAndStartSnapshot(ctx, credential, types.KindFull)
		cancel()
		if err != nil {
			s.log.WithField("account_index", i).Error("scheduled snapshot failed to start", err)
			continue
		}
		s.log.WithFields(map[string]interface{}{
			"account_index": i,
			"snapshot":      snap.ID,
		}).Info("scheduled snapshot started")
	}
}
