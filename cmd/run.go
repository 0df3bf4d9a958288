package cmd

import (
	"context"
	"time"

	"github.com/OjusWiZard/triton-bot/internal/metrics/prometheus"
	"github.com/OjusWiZard/triton-bot/internal/shutdown"
	"github.com/OjusWiZard/triton-bot/pkg/fleet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduler: startup notice, balance checks and monthly autoclaim",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := buildApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()
		l := a.logger

		if a.config.PrometheusConfig.Enabled {
			promServer := prometheus.NewPrometheusServer(&prometheus.PrometheusServerConfig{
				Port: a.config.PrometheusConfig.Port,
			}, l)
			if err := promServer.Start(ctx); err != nil {
				l.Sugar().Fatalw("Failed to start prometheus server", zap.Error(err))
			}
		}

		scheduler := fleet.NewScheduler(fleet.NewRealClock(), &fleet.SchedulerConfig{
			JobTimeout: a.config.SchedulerConfig.JobTimeout,
			Location:   a.config.GetLocation(),
		}, a.metricsSink, l)
		for _, job := range a.fleet.StandardJobs() {
			scheduler.AddJob(job)
		}
		scheduler.Start(ctx)

		l.Sugar().Infow("Started Triton",
			zap.Int("services", a.fleet.Len()),
			zap.Bool("autoclaim", a.config.SchedulerConfig.AutoclaimEnabled),
		)
		l.Sugar().Infow("Scheduled jobs", zap.String("jobs", scheduler.JobsReport()))

		done := make(chan struct{})
		shutdown.ListenForShutdown(ctx, shutdown.CreateGracefulShutdownChannel(), done, func() {
			l.Sugar().Info("Shutting down...")
			cancel()
			go func() {
				scheduler.Wait()
				close(done)
			}()
		}, 30*time.Second, l)
		return nil
	},
}
