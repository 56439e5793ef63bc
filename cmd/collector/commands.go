package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"crypto-collector/internal/domain"
	"crypto-collector/internal/repository"
	"crypto-collector/internal/worker"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ============================================================================
// MIGRATIONS
// ============================================================================

func newMigrateCommand() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply deposit ledger migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if down {
				return repository.RollbackMigration(cfg.Database.URL, cfg.Database.MigrationsPath, logger)
			}
			return repository.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath, logger)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent migration")

	return cmd
}

// ============================================================================
// DEPOSITS
// ============================================================================

func newIssueCommand() *cobra.Command {
	var orderID, chainName, usd string

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a deposit address for an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := domain.ParseChain(chainName)
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(usd)
			if err != nil {
				return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, usd)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				invoice, err := a.deposits.Issue(ctx, orderID, chain, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), invoice)
			})
		},
	}

	cmd.Flags().StringVar(&orderID, "order", "", "Order identifier (required)")
	cmd.Flags().StringVar(&chainName, "chain", "", "Chain name or symbol (required)")
	cmd.Flags().StringVar(&usd, "usd", "", "Order amount in USD (required)")
	cmd.MarkFlagRequired("order")
	cmd.MarkFlagRequired("chain")
	cmd.MarkFlagRequired("usd")

	return cmd
}

func newListCommand() *cobra.Command {
	var chainName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the deposit addresses of a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := domain.ParseChain(chainName)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				deposits, err := a.deposits.ListDeposits(ctx, chain)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), deposits)
			})
		},
	}

	cmd.Flags().StringVar(&chainName, "chain", "", "Chain name or symbol (required)")
	cmd.MarkFlagRequired("chain")

	return cmd
}

func newMarkPaidCommand() *cobra.Command {
	var chainName, address, txHash string

	cmd := &cobra.Command{
		Use:   "mark-paid",
		Short: "Record a confirmed payment to a deposit address",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := domain.ParseChain(chainName)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				deposit, err := a.deposits.MarkPaid(ctx, chain, address, txHash)
				if err != nil {
					return err
				}
				a.balances.Invalidate(ctx, chain)
				return printJSON(cmd.OutOrStdout(), deposit)
			})
		},
	}

	cmd.Flags().StringVar(&chainName, "chain", "", "Chain name or symbol (required)")
	cmd.Flags().StringVar(&address, "address", "", "Deposit address (required)")
	cmd.Flags().StringVar(&txHash, "tx", "", "Payment transaction hash")
	cmd.MarkFlagRequired("chain")
	cmd.MarkFlagRequired("address")

	return cmd
}

// ============================================================================
// BALANCES AND SWEEPS
// ============================================================================

func newBalanceCommand() *cobra.Command {
	var chainName string
	var cached bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Report the custodial balance of one or every chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			var selected []domain.Chain
			if chainName != "" {
				chain, err := domain.ParseChain(chainName)
				if err != nil {
					return err
				}
				selected = append(selected, chain)
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				var report *domain.BalanceReport
				if cached {
					report = a.balances.CachedBalances(ctx, selected...)
				} else {
					report = a.balances.TotalBalances(ctx, selected...)
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().StringVar(&chainName, "chain", "", "Chain name or symbol (default: every enabled chain)")
	cmd.Flags().BoolVar(&cached, "cached", false, "Serve from the balance cache when fresh")

	return cmd
}

func newSweepCommand() *cobra.Command {
	var chainName, destination string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep every paid deposit of a chain to a treasury address",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := domain.ParseChain(chainName)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				result, err := a.sweeps.Sweep(ctx, chain, destination)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}

	cmd.Flags().StringVar(&chainName, "chain", "", "Chain name or symbol (required)")
	cmd.Flags().StringVar(&destination, "to", "", "Treasury address (required)")
	cmd.MarkFlagRequired("chain")
	cmd.MarkFlagRequired("to")

	return cmd
}

// ============================================================================
// WORKERS
// ============================================================================

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the balance monitor and scheduled sweeps until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()

				balanceMonitor := worker.NewBalanceMonitor(a.balances, a.cfg.Workers.BalanceRefreshInterval, a.logger)
				sweepWorker := worker.NewSweepWorker(a.sweeps, a.cfg.Workers.SweepDestinations, a.cfg.Workers.SweepInterval, a.logger)

				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					balanceMonitor.Start(ctx)
				}()
				go func() {
					defer wg.Done()
					sweepWorker.Start(ctx)
				}()

				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sigChan)

				sig := <-sigChan
				a.logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

				cancel()
				wg.Wait()

				a.logger.Info("Workers stopped")
				return nil
			})
		},
	}
}

// withApp wires the collector, runs fn and releases every connection
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
