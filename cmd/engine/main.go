package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arourke/wxengine/config"
	"github.com/arourke/wxengine/internal/adapters/notify"
	"github.com/arourke/wxengine/internal/adapters/storage"
	"github.com/arourke/wxengine/internal/adapters/venue"
	"github.com/arourke/wxengine/internal/adapters/weather"
	"github.com/arourke/wxengine/internal/calibration"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/executor"
	"github.com/arourke/wxengine/internal/forecast"
	"github.com/arourke/wxengine/internal/orchestrator"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/arourke/wxengine/internal/scanner"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single scan cycle and exit")
	dryRun := flag.Bool("dry-run", false, "with -once, evaluate opportunities without placing real orders (the continuous loop does not read it)")
	validate := flag.Bool("validate", false, "load config, wire everything, and exit without running")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print a table of all open trades and exit")
	report := flag.Bool("report", false, "print a table of resolved opportunities and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("wxengine starting", "config", *configPath, "dry_run", *dryRun, "once", *once)

	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *table {
		runTableReport(ctx, store)
		return
	}
	if *report {
		runAccuracyReport(ctx, store, cfg.CalibrationWindowDays())
		return
	}

	venues := buildVenues(cfg)
	sources := buildWeatherSources(cfg)
	obs := weather.NewStationObservationFeed(cfg.Weather.MetarBaseURL, cfg.Weather.SecondaryBaseURL, cfg.Weather.SecondaryAPIKey)

	calStore := calibration.NewStore(store, cfg.CalibrationConfig(), cfg.CalibrationRefreshTTL(), cfg.CalibrationWindowDays())
	engine := forecast.NewEngine(sources, calStore, cfg.ForecastConfig())

	alerts := buildAlerts(cfg)

	bankroll, err := executor.NewBankroll(ctx, cfg.ExecutorConfig(), store)
	if err != nil {
		slog.Error("failed to build bankroll", "err", err)
		os.Exit(1)
	}
	exec := executor.New(cfg.ExecutorConfig(), bankroll, venues, store, alerts)

	scanCfg := cfg.ScannerConfig()
	scan := scanner.New(scanCfg, cfg.CalibrationConfig(), engine, venues, store, store, calStore, obs)
	gw := scanner.NewGuaranteedWinDetector(scanCfg, obs)

	cities := cfg.Cities()

	if *validate {
		slog.Info("validate: configuration wired successfully", "cities", len(cities), "venues", len(venues), "sources", len(sources))
		return
	}

	if *once {
		dates := []string{todayFor(cities)}
		opps, err := scan.Scan(ctx, cities, dates)
		if err != nil {
			slog.Error("scan failed", "err", err)
			os.Exit(1)
		}
		for _, opp := range opps {
			if !*dryRun {
				if _, err := exec.Execute(ctx, opp); err != nil {
					slog.Info("opportunity not executed", "city", opp.City, "date", opp.Date, "side", opp.Side, "err", err)
				}
			}
		}
		slog.Info("single scan cycle complete", "opportunities", len(opps))
		return
	}

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.ScanInterval, orchCfg.SnapshotInterval, orchCfg.ObservationInterval = cfg.OrchestratorIntervals()
	orchCfg.Cities = cities
	orchCfg.Dates = func() []string { return []string{todayFor(cities)} }

	orch := orchestrator.New(orchCfg, scan, gw, exec, venues, store, store)
	orch.Run(ctx)

	slog.Info("wxengine stopped cleanly")
}

func buildVenues(cfg *config.Config) map[domain.Venue]ports.VenueAdapter {
	venues := map[domain.Venue]ports.VenueAdapter{}
	if p, ok := cfg.Platforms["kalshi"]; ok && p.Enabled {
		venues["kalshi"] = venue.NewKalshi(p.BaseURL, p.APIKey)
	}
	if p, ok := cfg.Platforms["polymarket"]; ok && p.Enabled {
		venues["polymarket"] = venue.NewPolymarket(p.BaseURL, p.APIKey)
	}
	return venues
}

// buildWeatherSources wires the eight-source fan-out spec §4.2 describes:
// three global (two Open-Meteo NWP variants plus the commercial feed), one
// US-government source, three shadow NWPs, and one read-only ensemble
// source never entering the live average.
func buildWeatherSources(cfg *config.Config) []ports.WeatherSource {
	w := cfg.Weather
	return []ports.WeatherSource{
		weather.NewOpenMeteo("gfs", "gfs_seamless", w.OpenMeteoBaseURL, false),
		weather.NewOpenMeteo("ecmwf", "ecmwf_ifs025", w.OpenMeteoBaseURL, false),
		weather.NewCommercial(w.CommercialBaseURL, w.CommercialAPIKey),
		weather.NewNWS(w.NWSBaseURL),
		weather.NewOpenMeteo("icon", "icon_seamless", w.OpenMeteoBaseURL, true),
		weather.NewOpenMeteo("gem", "gem_seamless", w.OpenMeteoBaseURL, true),
		weather.NewOpenMeteo("jma", "jma_seamless", w.OpenMeteoBaseURL, true),
		weather.NewEnsembleSpread(w.OpenMeteoBaseURL),
	}
}

func buildAlerts(cfg *config.Config) ports.Alerts {
	if cfg.Notify.TelegramToken == "" {
		return notify.NewConsole()
	}
	bot, err := notify.NewTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
	if err != nil {
		slog.Warn("failed to wire telegram notifier, falling back to console", "err", err)
		return notify.NewConsole()
	}
	return bot
}

func todayFor(cities []domain.City) string {
	if len(cities) == 0 {
		return ""
	}
	return domain.TodayIn(cities[0].TZ)
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
