package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/dbaas/internal/activity"
	"github.com/edvin/dbaas/internal/config"
	"github.com/edvin/dbaas/internal/db"
	"github.com/edvin/dbaas/internal/logging"
	"github.com/edvin/dbaas/internal/metrics"
	"github.com/edvin/dbaas/internal/quota"
	"github.com/edvin/dbaas/internal/substrate"
	"github.com/edvin/dbaas/internal/workflow"
)

const dnsRecordTTL = 300

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(corePool)

	powerdnsPool, err := db.NewPowerDNSPool(ctx, cfg.PowerDNSDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to powerdns database")
	}
	if powerdnsPool != nil {
		defer powerdnsPool.Close()
	}

	tc, err := temporalclient.Dial(temporalclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	w := worker.New(tc, workflow.TaskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ErrorTypingInterceptor{}},
	})

	// Register activities
	compute := substrate.NewComputeClient(cfg.ComputeURL, cfg.SubstrateToken)
	w.RegisterActivity(activity.NewCompute(compute))

	volume := substrate.NewVolumeClient(cfg.VolumeURL, cfg.SubstrateToken)
	w.RegisterActivity(activity.NewVolume(volume))

	dns := substrate.NewDNSManager(powerdnsPool, cfg.DNSDomain, dnsRecordTTL)
	w.RegisterActivity(activity.NewDNS(dns))

	objectStore := substrate.NewObjectStore(cfg.ObjectStoreEndpoint, cfg.ObjectStoreKey, cfg.ObjectStoreSecret, "")
	w.RegisterActivity(activity.NewObjectStore(objectStore))

	w.RegisterActivity(activity.NewInstanceDB(corePool))

	engine := quota.NewEngine(corePool, logger, quota.DefaultLimits(
		cfg.MaxInstancesPerTenant, cfg.MaxVolumesPerTenant, cfg.MaxBackupsPerTenant))
	w.RegisterActivity(activity.NewQuota(engine))

	w.RegisterActivity(activity.NewReconciler(logger, corePool, compute, cfg.HeartbeatTTL()))

	// Register workflows
	w.RegisterWorkflow(workflow.InstanceTaskWorkflow)
	w.RegisterWorkflow(workflow.CreateInstanceWorkflow)
	w.RegisterWorkflow(workflow.DeleteInstanceWorkflow)
	w.RegisterWorkflow(workflow.RestartInstanceWorkflow)
	w.RegisterWorkflow(workflow.ResizeFlavorWorkflow)
	w.RegisterWorkflow(workflow.ResizeVolumeWorkflow)
	w.RegisterWorkflow(workflow.CreateBackupWorkflow)
	w.RegisterWorkflow(workflow.DeleteBackupWorkflow)
	w.RegisterWorkflow(workflow.AttachReplicaWorkflow)
	w.RegisterWorkflow(workflow.DetachReplicaWorkflow)
	w.RegisterWorkflow(workflow.GuestCallWorkflow)
	w.RegisterWorkflow(workflow.ReconcileStatusesWorkflow)

	if cfg.MetricsListenAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsListenAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsListenAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", workflow.TaskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// The status sweep runs on a fixed schedule. Errors for already-existing
	// schedules are ignored so that re-deploys do not fail.
	registerStatusSweep(ctx, tc, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

func registerStatusSweep(ctx context.Context, tc temporalclient.Client, logger zerolog.Logger) {
	const scheduleID = "status-sweep-cron"

	_, err := tc.ScheduleClient().Create(ctx, temporalclient.ScheduleOptions{
		ID: scheduleID,
		Spec: temporalclient.ScheduleSpec{
			CronExpressions: []string{"* * * * *"},
		},
		Action: &temporalclient.ScheduleWorkflowAction{
			ID:        scheduleID,
			Workflow:  workflow.ReconcileStatusesWorkflow,
			TaskQueue: workflow.TaskQueue,
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") {
			logger.Info().Str("id", scheduleID).Msg("cron schedule already exists, skipping")
		} else {
			logger.Fatal().Err(err).Str("id", scheduleID).Msg("failed to create cron schedule")
		}
		return
	}
	logger.Info().Str("id", scheduleID).Msg("created cron schedule")
}
