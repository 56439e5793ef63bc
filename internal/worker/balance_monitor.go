// internal/worker/balance_monitor.go
package worker

import (
	"context"
	"time"

	"crypto-collector/internal/domain"
	"crypto-collector/pkg/utils"

	"go.uber.org/zap"
)

type balanceRefresher interface {
	TotalBalances(ctx context.Context, chains ...domain.Chain) *domain.BalanceReport
}

// BalanceMonitor keeps the balance cache warm for dashboard polling
type BalanceMonitor struct {
	balances balanceRefresher
	interval time.Duration
	logger   *zap.Logger
	stopChan chan bool
}

func NewBalanceMonitor(
	balances balanceRefresher,
	interval time.Duration,
	logger *zap.Logger,
) *BalanceMonitor {
	return &BalanceMonitor{
		balances: balances,
		interval: interval,
		logger:   logger,
		stopChan: make(chan bool),
	}
}

// Start refreshes once immediately and then on every tick
func (bm *BalanceMonitor) Start(ctx context.Context) {
	if bm.interval <= 0 {
		bm.logger.Info("Balance monitor disabled")
		return
	}

	bm.logger.Info("Starting balance monitor", zap.Duration("interval", bm.interval))

	ticker := time.NewTicker(bm.interval)
	defer ticker.Stop()

	bm.refresh(ctx)

	for {
		select {
		case <-ticker.C:
			bm.refresh(ctx)

		case <-bm.stopChan:
			bm.logger.Info("Stopping balance monitor")
			return

		case <-ctx.Done():
			bm.logger.Info("Context cancelled, stopping balance monitor")
			return
		}
	}
}

func (bm *BalanceMonitor) refresh(ctx context.Context) {
	report := bm.balances.TotalBalances(ctx)

	for _, b := range report.Balances {
		fields := []zap.Field{
			zap.String("chain", string(b.Chain)),
			zap.String("total", utils.FormatBalance(b.Native, b.Chain.Decimals(), b.Symbol)),
			zap.Int("addresses", b.Addresses),
		}
		if b.Degraded {
			bm.logger.Warn("Balance refresh degraded", append(fields, zap.String("error", b.Error))...)
			continue
		}
		bm.logger.Debug("Balance refreshed", fields...)
	}
}

// Stop stops the balance monitor
func (bm *BalanceMonitor) Stop() {
	close(bm.stopChan)
}
