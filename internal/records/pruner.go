package records

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pruner periodically removes harvests left behind by interrupted plant
// deletions.
type Pruner struct {
	svc      *Service
	interval time.Duration
	log      *zap.Logger
}

func NewPruner(svc *Service, interval time.Duration, log *zap.Logger) *Pruner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pruner{svc: svc, interval: interval, log: log.Named("pruner")}
}

// Run sweeps once per interval until ctx is done. It always returns nil;
// failed sweeps are logged and retried at the next tick.
func (p *Pruner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Info("Pruner started", zap.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.log.Info("Pruner stopped")
			return nil
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Pruner) sweep(ctx context.Context) {
	n, err := p.svc.PruneOrphans(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Warn("Orphan harvest sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		p.log.Info("Orphan harvests removed", zap.Int64("count", n))
	}
}
