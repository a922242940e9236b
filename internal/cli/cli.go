// Package cli builds the heatqueue command line interface on top of
// spf13/cobra: run starts the full system (queue, sensor, canary,
// control plane, HTTP server) and blocks until a shutdown signal; enqueue
// submits a batch of job specs from a JSON file through a short-lived
// queue; status reports a running instance's metrics snapshot.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/magyarmex/heatqueue/internal/audit"
	"github.com/magyarmex/heatqueue/internal/canary"
	"github.com/magyarmex/heatqueue/internal/config"
	"github.com/magyarmex/heatqueue/internal/control"
	"github.com/magyarmex/heatqueue/internal/healthsrv"
	"github.com/magyarmex/heatqueue/internal/loadgen"
	"github.com/magyarmex/heatqueue/internal/metrics"
	"github.com/magyarmex/heatqueue/internal/queue"
	"github.com/magyarmex/heatqueue/internal/safety"
	"github.com/magyarmex/heatqueue/internal/sensorsrc"
	"github.com/magyarmex/heatqueue/pkg/types"
)

var configFile string

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "heatqueue",
		Short: "heatqueue: a sensor-gated, heartbeat-supervised job queue",
		Long: `heatqueue runs cooperative jobs under a bounded worker pool, enforcing
per-job duration limits, optional heartbeat supervision, and live sensor gating
before a job is ever admitted.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildEnqueueCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the heatqueue system and serve its HTTP endpoints",
		Long:  "Load config, start the queue, sensor policy, canary rollout, and HTTP server, then wait for SIGINT/SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem(configFile)
		},
	}
	return cmd
}

func runSystem(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()
	sugar := log.Sugar()

	sugar.Infow("starting heatqueue", "config", path, "workers", cfg.Worker.Count)

	reader := sensorsrc.Jitter(cfg.ThrottleThresholds.MaxTemperatureC*0.6, cfg.ThrottleThresholds.MaxTemperatureC*0.1, 80, 5, 1)
	maxTemp := cfg.ThrottleThresholds.MaxTemperatureC
	q := queue.New(queue.Config{
		MaxQueueSize: cfg.Worker.MaxQueueSize,
		Concurrency:  cfg.Worker.Count,
		SensorPolicy: &queue.SensorPolicy{
			Reader:          reader,
			MaxTemperatureC: &maxTemp,
			CooldownSeconds: 1,
			StopOnViolation: false,
		},
	})
	q.Start()

	var auditLog *audit.Log
	if cfg.Audit.Enabled {
		auditLog, err = audit.Open(cfg.Audit.Path, 0, 0)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
	}
	plane := control.New(q, auditLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.CanaryStages) > 0 {
		store := canary.NewCheckpointStore(cfg.Audit.Path + ".canary.json")
		probe := func(ctx context.Context) (bool, error) {
			snap := q.Metrics().Snapshot()
			if snap.Started == 0 {
				return true, nil
			}
			failureRate := float64(snap.Failed+snap.TimedOut+snap.HeartbeatMissed) / float64(snap.Started)
			return failureRate < 0.5, nil
		}
		mgr, err := canary.NewManager("production", cfg.CanaryStages, q, plane, probe, store, sugar)
		if err != nil {
			return fmt.Errorf("failed to build canary manager: %w", err)
		}
		go func() {
			if err := mgr.Run(ctx); err != nil {
				sugar.Warnw("canary rollout stopped", "err", err)
			}
		}()
	}

	var httpServer *http.Server
	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector(q)
		router := healthsrv.NewRouter(q, collector, sugar)
		httpServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: router}
		go func() {
			sugar.Infow("serving HTTP", "addr", cfg.Metrics.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sugar.Errorw("HTTP server error", "err", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	sugar.Info("received shutdown signal, stopping gracefully")

	cancel()
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}
	q.Stop()
	if auditLog != nil {
		_ = auditLog.Close()
	}

	sugar.Info("heatqueue stopped")
	return nil
}

func buildEnqueueCommand() *cobra.Command {
	var jobFile string
	var actor string
	var role string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a batch of jobs from a JSON file",
		Long:  "Read job specs from a JSON file, run them through a short-lived queue, and print their outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobFile == "" {
				return fmt.Errorf("job file is required (use --file or -f)")
			}
			return enqueueJobs(jobFile, actor, types.Role(role))
		},
	}

	cmd.Flags().StringVarP(&jobFile, "file", "f", "", "JSON file containing an array of job specs")
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor name recorded in the audit log")
	cmd.Flags().StringVar(&role, "role", string(types.RoleOperator), "role the batch is submitted as (operator, admin, readonly)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func enqueueJobs(filePath, actor string, role types.Role) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read job file: %w", err)
	}

	var specs []types.JobSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return fmt.Errorf("failed to parse job file: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	q := queue.New(queue.Config{MaxQueueSize: cfg.Worker.MaxQueueSize, Concurrency: cfg.Worker.Count})
	q.Start()
	defer q.Stop()

	plane := control.New(q, nil)
	sess := control.NewSession(actor, role)

	maxTemp := cfg.ThrottleThresholds.MaxTemperatureC
	bounds := safety.Bounds{
		MaxLoad:         cfg.ThrottleThresholds.MaxCPULoad,
		SensorThreshold: &maxTemp,
		MaxRuntime:      time.Duration(cfg.DurationCeiling.MaxMinutes) * time.Minute,
	}

	handles := make([]*queue.Handle, 0, len(specs))
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		load := spec.Load
		if load <= 0 {
			load = 1.0
		}
		if err := bounds.Validate(spec.DurationLimit, load, nil); err != nil {
			fmt.Printf("job %q rejected by safety envelope: %v\n", spec.Name, err)
			continue
		}

		handle, err := plane.Enqueue(sess, spec.Name, loadgen.Spin(spec, spec.HeartbeatInterval/2), spec.DurationLimit, spec.HeartbeatInterval)
		if err != nil {
			fmt.Printf("job %q rejected: %v\n", spec.Name, err)
			continue
		}
		handles = append(handles, handle)
		names = append(names, spec.Name)
	}

	succeeded := 0
	for i, handle := range handles {
		out := handle.Wait()
		if out.Kind == queue.OutcomeValue {
			succeeded++
		}
		fmt.Printf("job %q: %s\n", names[i], out.Kind)
	}
	fmt.Printf("%d/%d jobs completed successfully\n", succeeded, len(handles))

	return nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configured limits and a running instance's status",
		Long:  "Print the loaded configuration and, if reachable, the live metrics snapshot from a running heatqueue instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("heatqueue status")
	fmt.Printf("  config file:       %s\n", configFile)
	fmt.Printf("  worker count:      %d\n", cfg.Worker.Count)
	fmt.Printf("  max queue size:    %d\n", cfg.Worker.MaxQueueSize)
	fmt.Printf("  max temperature:   %.1fC\n", cfg.ThrottleThresholds.MaxTemperatureC)
	fmt.Printf("  enabled presets:   %d\n", len(cfg.Presets))
	if len(cfg.DisabledHighRiskPresets) > 0 {
		fmt.Printf("  disabled presets:  %v\n", cfg.DisabledHighRiskPresets)
	}

	if !cfg.Metrics.Enabled {
		fmt.Println("  metrics endpoint:  disabled in config")
		return nil
	}

	client := http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost%s/queue", cfg.Metrics.Addr))
	if err != nil {
		fmt.Printf("  live instance:     not reachable at %s (%v)\n", cfg.Metrics.Addr, err)
		return nil
	}
	defer resp.Body.Close()

	var stats types.QueueStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		fmt.Printf("  live instance:     unexpected response from %s (%v)\n", cfg.Metrics.Addr, err)
		return nil
	}

	fmt.Printf("  live instance:     %s\n", cfg.Metrics.Addr)
	fmt.Printf("    started:          %d\n", stats.Started)
	fmt.Printf("    completed:        %d\n", stats.Completed)
	fmt.Printf("    failed:           %d\n", stats.Failed)
	fmt.Printf("    timed out:        %d\n", stats.TimedOut)
	fmt.Printf("    heartbeat missed: %d\n", stats.HeartbeatMissed)
	fmt.Printf("    sensor throttles: %d\n", stats.SensorThrottles)
	fmt.Printf("    sensor aborts:    %d\n", stats.SensorAborts)
	fmt.Printf("    queue rejections: %d\n", stats.QueueRejections)
	return nil
}
