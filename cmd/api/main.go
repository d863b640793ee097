package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cpenarrieta/personal-finance-app-sub004/internal/domain/item"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/interfaces/scheduler"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/shared/config"
	"github.com/cpenarrieta/personal-finance-app-sub004/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Initialize telemetry (if enabled)
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Environment:  cfg.Telemetry.Environment,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			MetricsPort:  cfg.Telemetry.MetricsPort,
		})
		if err != nil {
			log.Printf("Warning: Failed to initialize telemetry: %v", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := shutdownTelemetry(shutdownCtx); err != nil {
					log.Printf("Error shutting down telemetry: %v", err)
				}
			}()
		}
	}

	// Initialize all dependencies
	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Initialize scheduler (if enabled)
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.NewScheduler(scheduler.Config{
			ScheduleTimes: cfg.Scheduler.ScheduleTimes,
			WorkerCount:   cfg.Scheduler.WorkerCount,
			JobDelay:      cfg.Scheduler.JobDelay,
			QueueSize:     cfg.Scheduler.QueueSize,
			RunOnStartup:  cfg.Scheduler.RunOnStartup,
			JobProvider:   newJobProvider(deps),
		})
		if err != nil {
			return err
		}
		sched.Start()
		log.Printf("Scheduler started with times: %v", cfg.Scheduler.ScheduleTimes)
	} else {
		log.Println("Scheduler is disabled")
	}

	// Sweep expired reconnection staging rows independently of the sync
	// schedule. They hold live provider credentials.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go runStagingSweep(sweepCtx, deps, cfg.Staging.SweepInterval)

	// Set up routes and start servers
	handler := SetupRoutes(deps, cfg)
	srv, redirectSrv := StartServers(NewServerConfigFromConfig(handler, cfg))

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	GracefulShutdown(srv, redirectSrv, sched, 30*time.Second)
	return nil
}

// runStagingSweep evicts expired staging rows on a fixed interval until ctx
// is cancelled.
func runStagingSweep(ctx context.Context, deps *Dependencies, interval time.Duration) {
	sweep := scheduler.NewStagingSweepJob(deps.Staging)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sweep.Execute(ctx); err != nil {
				log.Printf("Staging sweep error: %v", err)
			}
		}
	}
}

// newJobProvider builds the scheduled batch: one sync job per syncable item
// plus a sweep of expired reconnection staging rows.
func newJobProvider(deps *Dependencies) func(context.Context) ([]scheduler.Job, error) {
	return func(ctx context.Context) ([]scheduler.Job, error) {
		items, err := deps.ItemRepo.ListByStatus(ctx, item.StatusActive)
		if err != nil {
			return nil, err
		}

		jobs := make([]scheduler.Job, 0, len(items)+1)
		for _, it := range items {
			jobs = append(jobs, scheduler.NewItemSyncJob(it.ID, deps.SyncEngine))
		}
		jobs = append(jobs, scheduler.NewStagingSweepJob(deps.Staging))
		return jobs, nil
	}
}
