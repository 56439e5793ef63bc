// internal/worker/sweep_worker.go
package worker

import (
	"context"
	"errors"
	"time"

	"crypto-collector/internal/domain"

	"go.uber.org/zap"
)

type sweeper interface {
	Sweep(ctx context.Context, chain domain.Chain, destination string) (*domain.SweepResult, error)
}

// SweepWorker sweeps every chain with a configured treasury on a schedule
type SweepWorker struct {
	sweeps       sweeper
	destinations map[domain.Chain]string
	interval     time.Duration
	logger       *zap.Logger
	stopChan     chan bool
}

func NewSweepWorker(
	sweeps sweeper,
	destinations map[domain.Chain]string,
	interval time.Duration,
	logger *zap.Logger,
) *SweepWorker {
	return &SweepWorker{
		sweeps:       sweeps,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
		stopChan:     make(chan bool),
	}
}

func (sw *SweepWorker) Start(ctx context.Context) {
	if sw.interval <= 0 || len(sw.destinations) == 0 {
		sw.logger.Info("Sweep worker disabled")
		return
	}

	sw.logger.Info("Starting sweep worker", zap.Duration("interval", sw.interval))

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sw.sweepAll(ctx)

		case <-sw.stopChan:
			sw.logger.Info("Stopping sweep worker")
			return

		case <-ctx.Done():
			sw.logger.Info("Context cancelled, stopping sweep worker")
			return
		}
	}
}

func (sw *SweepWorker) sweepAll(ctx context.Context) {
	sw.logger.Info("Starting scheduled sweep")

	for _, chain := range domain.AllChains {
		destination, ok := sw.destinations[chain]
		if !ok || destination == "" {
			continue
		}
		sw.sweepChain(ctx, chain, destination)
	}
}

func (sw *SweepWorker) sweepChain(ctx context.Context, chain domain.Chain, destination string) {
	result, err := sw.sweeps.Sweep(ctx, chain, destination)
	if errors.Is(err, domain.ErrSweepInProgress) {
		sw.logger.Info("Sweep already running, skipping", zap.String("chain", string(chain)))
		return
	}
	if err != nil {
		sw.logger.Error("Sweep failed",
			zap.Error(err),
			zap.String("chain", string(chain)))
		return
	}

	if failed := result.Count(domain.SweepStateFailed); failed > 0 {
		sw.logger.Warn("Sweep finished with failures",
			zap.String("chain", string(chain)),
			zap.Int("failed", failed),
			zap.Int("swept", result.InitiatedCount))
	}
}

func (sw *SweepWorker) Stop() {
	close(sw.stopChan)
}
