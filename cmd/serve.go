package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sokoprice/internal/alerts"
	"github.com/sells-group/sokoprice/internal/api"
)

var (
	servePort    int
	serveNoAlert bool
	serveSeed    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API, USSD webhook and alert scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if serveSeed {
			res, err := runSeed(ctx, env.Store, seedOptions{Sources: true, Now: time.Now(), Catalog: env.Catalog})
			if err != nil {
				return err
			}
			zap.L().Info("catalog seeded", zap.Int("crops", res.Crops), zap.Int("markets", res.Markets))
		}

		if !serveNoAlert {
			sched, err := newAlertScheduler(env)
			if err != nil {
				return err
			}
			go sched.Run(ctx)
		}

		handler := api.NewServer(api.Deps{
			Store:       env.Store,
			Prices:      env.Prices,
			Alerts:      env.Alerts,
			Analytics:   env.Analytics,
			USSD:        env.USSD,
			CountryCode: cfg.USSD.CountryCode,
		}, cfg.Server)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("alerts", !serveNoAlert),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newAlertScheduler registers the alert check and daily summary jobs in the
// alerts timezone.
func newAlertScheduler(env *appEnv) (*alerts.Scheduler, error) {
	sched := alerts.NewScheduler(env.Location)
	if err := sched.Add(cfg.Alerts.CheckSchedule, alerts.CheckJob(env.Evaluator)); err != nil {
		return nil, err
	}
	if err := sched.Add(cfg.Alerts.SummarySchedule, alerts.SummaryJob(env.Evaluator)); err != nil {
		return nil, err
	}
	return sched, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoAlert, "no-alerts", false, "do not run the alert scheduler")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "load the bundled catalog and sample sources before serving")
	rootCmd.AddCommand(serveCmd)
}
