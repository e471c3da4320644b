package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/restitch/internal/server"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the snapshot scheduler",
		Long: `Serve exposes the engine over HTTP and, when schedule.cron is
configured, takes automatic full snapshots of the configured accounts.
Scheduled runs treat eviction as pre-confirmed.`,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "listen address (overrides config)")
	cmd.Flags().String("cron", "", "snapshot schedule cron expression (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := cfg.Server.Addr
	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		addr = flagAddr
	}

	srv := server.New(addr, rt.engine, rt.log)

	cronSpec := cfg.Schedule.Cron
	if flagCron, _ := cmd.Flags().GetString("cron"); flagCron != "" {
		cronSpec = flagCron
	}

	var sched *server.Scheduler
	if cronSpec != "" {
		sched, err = server.NewScheduler(cronSpec, cfg.Schedule.Credentials, rt.engine, rt.log)
		if err != nil {
			return err
		}
		sched.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	rt.log.Info("shutting down")
	if sched != nil {
		sched.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	rt.engine.WaitForBuilds()
	return nil
}
