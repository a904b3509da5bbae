package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bin-dates/api"
	"bin-dates/config"
	"bin-dates/metrics"
	"bin-dates/models"
	"bin-dates/scraper/ambervalley"
	"bin-dates/services"
	"bin-dates/storage"
	"bin-dates/utils"
)

const usage = `usage: bin-dates [command]

commands:
  run                          poll collection dates and serve them (default)
  once                         fetch and print the next collection dates
  addresses <postcode>         list the properties registered at a postcode
  resolve <postcode> <address> find the UPRN of the address starting with <address>
`

func main() {
	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := utils.NewLogger().WithLevel(utils.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := ambervalley.New(
		ambervalley.WithTimeout(cfg.RequestTimeout),
		ambervalley.WithLogger(logger),
	)

	var code int
	switch cmd {
	case "run":
		code = run(ctx, cfg, client, logger)
	case "once":
		code = once(ctx, cfg, client, logger)
	case "addresses":
		if len(args) != 1 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		code = listAddresses(ctx, client, args[0], os.Stdout)
	case "resolve":
		if len(args) != 2 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		code = resolve(ctx, cfg, client, logger, args[0], args[1], os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		code = 2
	}
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, client *ambervalley.Client, logger *utils.Logger) int {
	logger.Info("=== Amber Valley bin dates starting ===")
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		return 1
	}
	loc, _ := cfg.Location()

	uprn, err := configuredUPRN(ctx, cfg, client, logger)
	if err != nil {
		logger.Error("Cannot determine property: %v", err)
		return 1
	}
	logger.Info("Config: uprn: %s | interval: %s | timeout: %s | timezone: %s",
		uprn, cfg.PollInterval, cfg.RequestTimeout, loc)

	publishers, err := openPublishers(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open state publishers: %v", err)
		return 1
	}
	defer func() {
		for _, p := range publishers {
			if err := p.Close(); err != nil {
				logger.Warn("Closing publisher: %v", err)
			}
		}
	}()

	m := metrics.New()
	coord := services.NewCoordinator(client, services.CoordinatorConfig{
		UPRN:         uprn,
		PollInterval: cfg.PollInterval,
		Timeout:      cfg.RequestTimeout,
		Policy:       services.NewDayPolicy(loc),
		Publishers:   publishers,
		Metrics:      m,
	}, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(api.NewHandler(coord, m.Handler(), logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("State API listening on http://localhost%s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Stopped: %v", err)
		return 1
	}
	logger.Info("Shut down cleanly")
	return 0
}

func once(ctx context.Context, cfg *config.Config, client *ambervalley.Client, logger *utils.Logger) int {
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		return 1
	}
	loc, _ := cfg.Location()

	uprn, err := configuredUPRN(ctx, cfg, client, logger)
	if err != nil {
		logger.Error("Cannot determine property: %v", err)
		return 1
	}

	result, err := client.FetchDates(ctx, uprn)
	if err != nil {
		logger.Error("Collection dates unavailable: %v", err)
		return 1
	}

	svc := services.NewSummaryService(logger)
	svc.Print(os.Stdout, svc.Generate(uprn, cfg.PropertySelector, *result, services.NewDayPolicy(loc)))
	return 0
}

// configuredUPRN returns PROPERTY_UPRN, or resolves POSTCODE and
// PROPERTY_SELECTOR when no UPRN is configured.
func configuredUPRN(ctx context.Context, cfg *config.Config, client *ambervalley.Client, logger *utils.Logger) (models.UPRN, error) {
	if cfg.PropertyUPRN != "" {
		return models.UPRN(cfg.PropertyUPRN), nil
	}
	logger.Info("No PROPERTY_UPRN set, resolving %q at %s", cfg.PropertySelector, cfg.Postcode)
	match, err := lookupAndResolve(ctx, client, cfg.Postcode, cfg.PropertySelector)
	if err != nil {
		return "", err
	}
	if match.Kind != models.MatchUnique {
		return "", matchError(match)
	}
	logger.Info("Resolved %q to uprn %s", match.Candidates[0].AddressComma, match.UPRN)
	return match.UPRN, nil
}

func openPublishers(ctx context.Context, cfg *config.Config, logger *utils.Logger) ([]storage.StatePublisher, error) {
	publishers := []storage.StatePublisher{storage.NewLogPublisher(logger)}

	if cfg.CSVOutputPath != "" {
		w, err := storage.NewCSVWriter(cfg.CSVOutputPath)
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, w)
		logger.Info("Appending states to %s", cfg.CSVOutputPath)
	}

	if cfg.Postgres.Enabled {
		pw, err := storage.NewPostgresWriter(ctx, cfg.DSN())
		if err != nil {
			for _, p := range publishers {
				_ = p.Close()
			}
			logger.Error("Make sure PostgreSQL is reachable at %s:%s", cfg.Postgres.Host, cfg.Postgres.Port)
			return nil, err
		}
		publishers = append(publishers, pw)
		logger.Info("Mirroring states to PostgreSQL (table: entity_states)")
	}
	return publishers, nil
}
