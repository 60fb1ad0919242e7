package application

import (
	"context"
	"time"

	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

// Poller recomputes risk from the data source on a fixed interval.
type Poller struct {
	service  RiskAssessmentService
	interval time.Duration
	logger   logger.Logger
}

// NewPoller creates a Poller. A non-positive interval uses the default.
func NewPoller(svc RiskAssessmentService, interval time.Duration, log logger.Logger) *Poller {
	if interval <= 0 {
		interval = constants.DefaultPollInterval
	}
	return &Poller{service: svc, interval: interval, logger: log.WithComponent("Poller")}
}

// Run runs one pass immediately and then one per interval until ctx is done.
// A failed pass is logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info(ctx, "Starting risk poller", logger.Fields{"interval": p.interval.String()})

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.runOnce(ctx)
		select {
		case <-ctx.Done():
			p.logger.Info(ctx, "Stopping risk poller")
			return
		case <-ticker.C:
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := p.service.RunFromSource(ctx); err != nil {
		p.logger.Warn(ctx, "Scheduled risk pass failed", logger.Fields{"error": err.Error()})
	}
}
