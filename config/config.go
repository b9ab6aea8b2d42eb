// Package config loads the static configuration document described in
// spec.md §6: cities, per-venue platform settings, and the forecasts/entry/
// sizing/guaranteed_entry/calibration tunable sections, plus the ambient
// storage/log sections.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arourke/wxengine/internal/calibration"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/executor"
	"github.com/arourke/wxengine/internal/forecast"
	"github.com/arourke/wxengine/internal/scanner"
)

// Config is the top-level document.
type Config struct {
	Cities    []CityConfig             `yaml:"cities"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`

	Forecasts       ForecastsConfig       `yaml:"forecasts"`
	Entry           EntryConfig           `yaml:"entry"`
	Sizing          SizingConfig          `yaml:"sizing"`
	GuaranteedEntry GuaranteedEntryConfig `yaml:"guaranteed_entry"`
	Calibration     CalibrationConfig     `yaml:"calibration"`

	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Storage      StorageConfig      `yaml:"storage"`
	Log          LogConfig          `yaml:"log"`
	Weather      WeatherSourcesConfig `yaml:"weather"`
	Notify       NotifyConfig         `yaml:"notify"`
}

// CityConfig is one configured trading city.
type CityConfig struct {
	Key              string            `yaml:"key"`
	Name             string            `yaml:"name"`
	Lat              float64           `yaml:"lat"`
	Lon              float64           `yaml:"lon"`
	TZ               string            `yaml:"tz"`
	Unit             string            `yaml:"unit"` // "F" or "C"
	Stations         map[string]string `yaml:"stations"` // venue -> station id
	IsUS             bool              `yaml:"is_us"`
	DualStation      bool              `yaml:"dual_station"`
	NWSPriorityVenue string            `yaml:"nws_priority_venue"`
}

// PlatformConfig is one venue's connection settings.
type PlatformConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// ForecastsConfig maps to forecast.Config.
type ForecastsConfig struct {
	FetchTimeoutSeconds   int     `yaml:"fetch_timeout_seconds"`
	CacheTTLMinutes       int     `yaml:"cache_ttl_minutes"`
	OutlierTrimThresholdF float64 `yaml:"outlier_trim_threshold_f"`
	NWSWeightBoost        float64 `yaml:"nws_weight_boost"`
	GovSourceName         string  `yaml:"gov_source_name"`
}

// EntryConfig maps to scanner.Config's non-guaranteed-win fields.
type EntryConfig struct {
	YesMaxForecastDistance float64 `yaml:"yes_max_forecast_distance"`
	YesCandidateCount      int     `yaml:"yes_candidate_count"`
	MinEdgePct             float64 `yaml:"min_edge_pct"`
	MaxSpread              float64 `yaml:"max_spread"`
	MaxSpreadPct           float64 `yaml:"max_spread_pct"`
	MinAskPrice            float64 `yaml:"min_ask_price"`
	MinNoAskPrice          float64 `yaml:"min_no_ask_price"`
	MaxNoAskPrice          float64 `yaml:"max_no_ask_price"`
	MinHoursToResolution   float64 `yaml:"min_hours_to_resolution"`
	MaxModelMarketRatio    float64 `yaml:"max_model_market_ratio"`
	MaxEnsembleSpreadC     float64 `yaml:"max_ensemble_spread_c"`
	MaxEnsembleSpreadF     float64 `yaml:"max_ensemble_spread_f"`
	MaxMarketDivergenceC   float64 `yaml:"max_market_divergence_c"`
	MaxStdRangeRatio       float64 `yaml:"max_std_range_ratio"`
	ObservationBufferC     float64 `yaml:"observation_buffer_c"`
	ObservationBufferF     float64 `yaml:"observation_buffer_f"`

	TradingEnabled map[string]bool            `yaml:"trading_enabled"` // venue -> enabled
	BlockedCities  map[string][]string        `yaml:"blocked_cities"`  // venue -> []city key
}

// SizingConfig maps to executor.Config.
type SizingConfig struct {
	TotalBankrollYes          float64 `yaml:"total_bankroll_yes"`
	TotalBankrollNo           float64 `yaml:"total_bankroll_no"`
	KellyFractionScale        float64 `yaml:"kelly_fraction_scale"`
	MinBetDollars             float64 `yaml:"min_bet_dollars"`
	MaxBetPctBankroll         float64 `yaml:"max_bet_pct_bankroll"`
	NoMaxExposurePerDate      float64 `yaml:"no_max_exposure_per_date"`
	MaxVolumeParticipationPct float64 `yaml:"max_volume_participation_pct"`
	SoftVolumeCapPct          float64 `yaml:"soft_volume_cap_pct"`
	GWMaxBankrollPct          float64 `yaml:"gw_max_bankroll_pct"`
	BankrollFloorDollars      float64 `yaml:"bankroll_floor_dollars"`
}

// GuaranteedEntryConfig maps to scanner.Config's guaranteed-win fields plus
// CalXxx calibration-bypass fields.
type GuaranteedEntryConfig struct {
	Enabled                  bool    `yaml:"enabled"`
	MinAsk                   float64 `yaml:"min_ask"`
	MaxAsk                   float64 `yaml:"max_ask"`
	MinAskDualConfirmed      float64 `yaml:"min_ask_dual_confirmed"`
	MinMarginCents           float64 `yaml:"min_margin_cents"`
	RequireDualConfirmation  bool    `yaml:"require_dual_confirmation"`
	MetarOnlyMinGapC         float64 `yaml:"metar_only_min_gap_c"`
	MetarOnlyMinGapF         float64 `yaml:"metar_only_min_gap_f"`
	MetarOnlyMinGapDualC     float64 `yaml:"metar_only_min_gap_dual_c"`
	MinBid                   float64 `yaml:"min_bid"`
}

// CalibrationConfig maps to calibration.Config plus the scanner's
// calibration-bypass thresholds.
type CalibrationConfig struct {
	RefreshTTLMinutes      int     `yaml:"refresh_ttl_minutes"`
	WindowDays             int     `yaml:"window_days"`
	DemotionMAECeilingF    float64 `yaml:"demotion_mae_ceiling_f"`
	DemotionMAECeilingC    float64 `yaml:"demotion_mae_ceiling_c"`
	RelativeDemotionFactor float64 `yaml:"relative_demotion_factor"`
	MinActiveSources       int     `yaml:"min_active_sources"`
	SoftDemotionMaxWeight  float64 `yaml:"soft_demotion_max_weight"`
	WeightMinSamples       int     `yaml:"weight_min_samples"`
	BoundedMaxMAEF         float64 `yaml:"bounded_max_mae_f"`
	BoundedMaxMAEC         float64 `yaml:"bounded_max_mae_c"`
	UnboundedMaxMAEF       float64 `yaml:"unbounded_max_mae_f"`
	UnboundedMaxMAEC       float64 `yaml:"unbounded_max_mae_c"`
	EligibilityMinSamples  int     `yaml:"eligibility_min_samples"`
	ModelCalPooledMinN     int     `yaml:"model_cal_pooled_min_n"`
	ModelCalCityMinN       int     `yaml:"model_cal_city_min_n"`
	CityStdDevMinSamples   int     `yaml:"city_stddev_min_samples"`
	PooledStdDevMinSamples int     `yaml:"pooled_stddev_min_samples"`

	CalMinTradeEdge float64 `yaml:"cal_min_trade_edge"`
	CalConfirmsMinN int     `yaml:"cal_confirms_min_n"`
	CalBlocksMinN   int     `yaml:"cal_blocks_min_n"`
}

// OrchestratorConfig maps to orchestrator.Config's cadences.
type OrchestratorConfig struct {
	ScanIntervalSeconds        int `yaml:"scan_interval_seconds"`
	SnapshotIntervalSeconds    int `yaml:"snapshot_interval_seconds"`
	ObservationIntervalSeconds int `yaml:"observation_interval_seconds"`
}

// StorageConfig controls where data is persisted.
type StorageConfig struct {
	DSN           string `yaml:"dsn"` // path to the SQLite file, or ":memory:"
	RetentionDays int    `yaml:"retention_days"`
}

// LogConfig controls logging format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// WeatherSourcesConfig holds the connection settings for the eight-source
// fan-out and the dual-confirmation observation feed (spec §4.2, §4.4).
// cmd/engine reads this directly to construct the concrete
// internal/adapters/weather clients; config itself stays adapter-agnostic.
type WeatherSourcesConfig struct {
	OpenMeteoBaseURL string `yaml:"open_meteo_base_url"`
	NWSBaseURL       string `yaml:"nws_base_url"`

	CommercialBaseURL string `yaml:"commercial_base_url"`
	CommercialAPIKey  string `yaml:"commercial_api_key"`

	MetarBaseURL     string `yaml:"metar_base_url"`
	SecondaryBaseURL string `yaml:"secondary_base_url"`
	SecondaryAPIKey  string `yaml:"secondary_api_key"`
}

// NotifyConfig selects and configures the Alerts implementation. When
// TelegramToken is empty, the console notifier is used.
type NotifyConfig struct {
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID int64  `yaml:"telegram_chat_id"`
}

// Load reads the YAML document at path, applies a .env file if present (env
// values win over YAML for the keys they cover), and fills in defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("COMMERCIAL_WEATHER_API_KEY"); v != "" {
		cfg.Weather.CommercialAPIKey = v
	}
	if v := os.Getenv("SECONDARY_WEATHER_API_KEY"); v != "" {
		cfg.Weather.SecondaryAPIKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notify.TelegramToken = v
	}
	for venue, platform := range cfg.Platforms {
		if key := os.Getenv(envKeyFor(venue)); key != "" {
			platform.APIKey = key
			cfg.Platforms[venue] = platform
		}
	}
}

func envKeyFor(venue string) string {
	switch venue {
	case "kalshi":
		return "KALSHI_API_KEY"
	case "polymarket":
		return "POLYMARKET_API_KEY"
	default:
		return ""
	}
}

func setDefaults(cfg *Config) {
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "wxengine.db"
	}
	if cfg.Storage.RetentionDays <= 0 {
		cfg.Storage.RetentionDays = 180
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Weather.OpenMeteoBaseURL == "" {
		cfg.Weather.OpenMeteoBaseURL = "https://api.open-meteo.com"
	}
	if cfg.Weather.NWSBaseURL == "" {
		cfg.Weather.NWSBaseURL = "https://api.weather.gov"
	}
	if cfg.Weather.MetarBaseURL == "" {
		cfg.Weather.MetarBaseURL = "https://aviationweather.gov/api/data"
	}

	if cfg.Orchestrator.ScanIntervalSeconds <= 0 {
		cfg.Orchestrator.ScanIntervalSeconds = 60
	}
	if cfg.Orchestrator.SnapshotIntervalSeconds <= 0 {
		cfg.Orchestrator.SnapshotIntervalSeconds = 900
	}
	if cfg.Orchestrator.ObservationIntervalSeconds <= 0 {
		cfg.Orchestrator.ObservationIntervalSeconds = 30
	}

	def := scanner.DefaultConfig()
	if cfg.Entry.YesMaxForecastDistance <= 0 {
		cfg.Entry.YesMaxForecastDistance = def.YesMaxForecastDistance
	}
	if cfg.Entry.YesCandidateCount <= 0 {
		cfg.Entry.YesCandidateCount = def.YesCandidateCount
	}
	if cfg.Entry.MinEdgePct <= 0 {
		cfg.Entry.MinEdgePct = def.MinEdgePct
	}
	if cfg.Entry.MaxSpread <= 0 {
		cfg.Entry.MaxSpread = def.MaxSpread
	}
	if cfg.Entry.MaxSpreadPct <= 0 {
		cfg.Entry.MaxSpreadPct = def.MaxSpreadPct
	}
	if cfg.Entry.MinAskPrice <= 0 {
		cfg.Entry.MinAskPrice = def.MinAskPrice
	}
	if cfg.Entry.MinNoAskPrice <= 0 {
		cfg.Entry.MinNoAskPrice = def.MinNoAskPrice
	}
	if cfg.Entry.MaxNoAskPrice <= 0 {
		cfg.Entry.MaxNoAskPrice = def.MaxNoAskPrice
	}
	if cfg.Entry.MinHoursToResolution <= 0 {
		cfg.Entry.MinHoursToResolution = def.MinHoursToResolution
	}
	if cfg.Entry.MaxModelMarketRatio <= 0 {
		cfg.Entry.MaxModelMarketRatio = def.MaxModelMarketRatio
	}
	if cfg.Entry.MaxEnsembleSpreadC <= 0 {
		cfg.Entry.MaxEnsembleSpreadC = def.MaxEnsembleSpreadC
	}
	if cfg.Entry.MaxEnsembleSpreadF <= 0 {
		cfg.Entry.MaxEnsembleSpreadF = def.MaxEnsembleSpreadF
	}
	if cfg.Entry.MaxMarketDivergenceC <= 0 {
		cfg.Entry.MaxMarketDivergenceC = def.MaxMarketDivergenceC
	}
	if cfg.Entry.MaxStdRangeRatio <= 0 {
		cfg.Entry.MaxStdRangeRatio = def.MaxStdRangeRatio
	}
	if cfg.Entry.ObservationBufferC <= 0 {
		cfg.Entry.ObservationBufferC = def.ObservationBufferC
	}
	if cfg.Entry.ObservationBufferF <= 0 {
		cfg.Entry.ObservationBufferF = def.ObservationBufferF
	}

	if !cfg.GuaranteedEntry.Enabled {
		cfg.GuaranteedEntry.Enabled = def.GWEnabled
	}
	if cfg.GuaranteedEntry.MinAsk <= 0 {
		cfg.GuaranteedEntry.MinAsk = def.GWMinAsk
	}
	if cfg.GuaranteedEntry.MaxAsk <= 0 {
		cfg.GuaranteedEntry.MaxAsk = def.GWMaxAsk
	}
	if cfg.GuaranteedEntry.MinAskDualConfirmed <= 0 {
		cfg.GuaranteedEntry.MinAskDualConfirmed = def.GWMinAskDualConfirmed
	}
	if cfg.GuaranteedEntry.MinMarginCents <= 0 {
		cfg.GuaranteedEntry.MinMarginCents = def.GWMinMarginCents
	}
	if cfg.GuaranteedEntry.MetarOnlyMinGapC <= 0 {
		cfg.GuaranteedEntry.MetarOnlyMinGapC = def.GWMetarOnlyMinGapC
	}
	if cfg.GuaranteedEntry.MetarOnlyMinGapF <= 0 {
		cfg.GuaranteedEntry.MetarOnlyMinGapF = def.GWMetarOnlyMinGapF
	}
	if cfg.GuaranteedEntry.MetarOnlyMinGapDualC <= 0 {
		cfg.GuaranteedEntry.MetarOnlyMinGapDualC = def.GWMetarOnlyMinGapDualC
	}
	if cfg.GuaranteedEntry.MinBid <= 0 {
		cfg.GuaranteedEntry.MinBid = def.GWMinBid
	}

	calDef := calibration.DefaultConfig()
	if cfg.Calibration.RefreshTTLMinutes <= 0 {
		cfg.Calibration.RefreshTTLMinutes = 360
	}
	if cfg.Calibration.WindowDays <= 0 {
		cfg.Calibration.WindowDays = 90
	}
	if cfg.Calibration.DemotionMAECeilingF <= 0 {
		cfg.Calibration.DemotionMAECeilingF = calDef.DemotionMAECeilingF
	}
	if cfg.Calibration.DemotionMAECeilingC <= 0 {
		cfg.Calibration.DemotionMAECeilingC = calDef.DemotionMAECeilingC
	}
	if cfg.Calibration.RelativeDemotionFactor <= 0 {
		cfg.Calibration.RelativeDemotionFactor = calDef.RelativeDemotionFactor
	}
	if cfg.Calibration.MinActiveSources <= 0 {
		cfg.Calibration.MinActiveSources = calDef.MinActiveSources
	}
	if cfg.Calibration.SoftDemotionMaxWeight <= 0 {
		cfg.Calibration.SoftDemotionMaxWeight = calDef.SoftDemotionMaxWeight
	}
	if cfg.Calibration.WeightMinSamples <= 0 {
		cfg.Calibration.WeightMinSamples = calDef.WeightMinSamples
	}
	if cfg.Calibration.BoundedMaxMAEF <= 0 {
		cfg.Calibration.BoundedMaxMAEF = calDef.BoundedMaxMAEF
	}
	if cfg.Calibration.BoundedMaxMAEC <= 0 {
		cfg.Calibration.BoundedMaxMAEC = calDef.BoundedMaxMAEC
	}
	if cfg.Calibration.UnboundedMaxMAEF <= 0 {
		cfg.Calibration.UnboundedMaxMAEF = calDef.UnboundedMaxMAEF
	}
	if cfg.Calibration.UnboundedMaxMAEC <= 0 {
		cfg.Calibration.UnboundedMaxMAEC = calDef.UnboundedMaxMAEC
	}
	if cfg.Calibration.EligibilityMinSamples <= 0 {
		cfg.Calibration.EligibilityMinSamples = calDef.EligibilityMinSamples
	}
	if cfg.Calibration.ModelCalPooledMinN <= 0 {
		cfg.Calibration.ModelCalPooledMinN = calDef.ModelCalPooledMinN
	}
	if cfg.Calibration.ModelCalCityMinN <= 0 {
		cfg.Calibration.ModelCalCityMinN = calDef.ModelCalCityMinN
	}
	if cfg.Calibration.CityStdDevMinSamples <= 0 {
		cfg.Calibration.CityStdDevMinSamples = calDef.CityStdDevMinSamples
	}
	if cfg.Calibration.PooledStdDevMinSamples <= 0 {
		cfg.Calibration.PooledStdDevMinSamples = calDef.PooledStdDevMinSamples
	}
	if cfg.Calibration.CalMinTradeEdge <= 0 {
		cfg.Calibration.CalMinTradeEdge = 3.0
	}
	if cfg.Calibration.CalConfirmsMinN <= 0 {
		cfg.Calibration.CalConfirmsMinN = 30
	}
	if cfg.Calibration.CalBlocksMinN <= 0 {
		cfg.Calibration.CalBlocksMinN = 30
	}

	sizeDef := executor.DefaultConfig()
	if cfg.Sizing.TotalBankrollYes <= 0 {
		cfg.Sizing.TotalBankrollYes = sizeDef.TotalBankrollYes
	}
	if cfg.Sizing.TotalBankrollNo <= 0 {
		cfg.Sizing.TotalBankrollNo = sizeDef.TotalBankrollNo
	}
	if cfg.Sizing.KellyFractionScale <= 0 {
		cfg.Sizing.KellyFractionScale = sizeDef.KellyFractionScale
	}
	if cfg.Sizing.MinBetDollars <= 0 {
		cfg.Sizing.MinBetDollars = sizeDef.MinBetDollars
	}
	if cfg.Sizing.MaxBetPctBankroll <= 0 {
		cfg.Sizing.MaxBetPctBankroll = sizeDef.MaxBetPctBankroll
	}
	if cfg.Sizing.NoMaxExposurePerDate <= 0 {
		cfg.Sizing.NoMaxExposurePerDate = sizeDef.NoMaxExposurePerDate
	}
	if cfg.Sizing.MaxVolumeParticipationPct <= 0 {
		cfg.Sizing.MaxVolumeParticipationPct = sizeDef.MaxVolumeParticipationPct
	}
	if cfg.Sizing.SoftVolumeCapPct <= 0 {
		cfg.Sizing.SoftVolumeCapPct = sizeDef.SoftVolumeCapPct
	}
	if cfg.Sizing.GWMaxBankrollPct <= 0 {
		cfg.Sizing.GWMaxBankrollPct = sizeDef.GWMaxBankrollPct
	}
	if cfg.Sizing.BankrollFloorDollars <= 0 {
		cfg.Sizing.BankrollFloorDollars = sizeDef.BankrollFloorDollars
	}

	if cfg.Forecasts.FetchTimeoutSeconds <= 0 {
		cfg.Forecasts.FetchTimeoutSeconds = 15
	}
	if cfg.Forecasts.CacheTTLMinutes <= 0 {
		cfg.Forecasts.CacheTTLMinutes = 30
	}
	if cfg.Forecasts.OutlierTrimThresholdF <= 0 {
		cfg.Forecasts.OutlierTrimThresholdF = 8.0
	}
	if cfg.Forecasts.NWSWeightBoost <= 0 {
		cfg.Forecasts.NWSWeightBoost = 1.5
	}
	if cfg.Forecasts.GovSourceName == "" {
		cfg.Forecasts.GovSourceName = "nws"
	}
}

// Cities converts the YAML city list into domain.City values.
func (c *Config) Cities() []domain.City {
	out := make([]domain.City, 0, len(c.Cities))
	for _, cc := range c.Cities {
		stations := make(map[domain.Venue]string, len(cc.Stations))
		for venue, station := range cc.Stations {
			stations[domain.Venue(venue)] = station
		}
		unit := domain.UnitFahrenheit
		if cc.Unit == "C" {
			unit = domain.UnitCelsius
		}
		out = append(out, domain.City{
			Key: cc.Key, Name: cc.Name, Lat: cc.Lat, Lon: cc.Lon, TZ: cc.TZ,
			Unit: unit, Stations: stations, IsUS: cc.IsUS, DualStation: cc.DualStation,
			NWSPriorityVenue: domain.Venue(cc.NWSPriorityVenue),
		})
	}
	return out
}

// ScannerConfig builds a scanner.Config from the entry/guaranteed_entry/
// calibration sections.
func (c *Config) ScannerConfig() scanner.Config {
	tradingEnabled := map[domain.Venue]bool{}
	for venue, enabled := range c.Entry.TradingEnabled {
		tradingEnabled[domain.Venue(venue)] = enabled
	}
	blocked := map[domain.Venue]map[string]bool{}
	for venue, cities := range c.Entry.BlockedCities {
		set := make(map[string]bool, len(cities))
		for _, city := range cities {
			set[city] = true
		}
		blocked[domain.Venue(venue)] = set
	}

	return scanner.Config{
		YesMaxForecastDistance: c.Entry.YesMaxForecastDistance,
		YesCandidateCount:      c.Entry.YesCandidateCount,
		MinEdgePct:             c.Entry.MinEdgePct,
		MaxSpread:              c.Entry.MaxSpread,
		MaxSpreadPct:           c.Entry.MaxSpreadPct,
		MinAskPrice:            c.Entry.MinAskPrice,
		MinNoAskPrice:          c.Entry.MinNoAskPrice,
		MaxNoAskPrice:          c.Entry.MaxNoAskPrice,
		MinHoursToResolution:   c.Entry.MinHoursToResolution,
		MaxModelMarketRatio:    c.Entry.MaxModelMarketRatio,
		MaxEnsembleSpreadC:     c.Entry.MaxEnsembleSpreadC,
		MaxEnsembleSpreadF:     c.Entry.MaxEnsembleSpreadF,
		MaxMarketDivergenceC:   c.Entry.MaxMarketDivergenceC,
		MaxStdRangeRatio:       c.Entry.MaxStdRangeRatio,
		ObservationBufferC:     c.Entry.ObservationBufferC,
		ObservationBufferF:     c.Entry.ObservationBufferF,
		CalMinTradeEdge:        c.Calibration.CalMinTradeEdge,
		CalConfirmsMinN:        c.Calibration.CalConfirmsMinN,
		CalBlocksMinN:          c.Calibration.CalBlocksMinN,
		TradingEnabled:         tradingEnabled,
		BlockedCities:          blocked,
		GWEnabled:              c.GuaranteedEntry.Enabled,
		GWMinAsk:               c.GuaranteedEntry.MinAsk,
		GWMaxAsk:               c.GuaranteedEntry.MaxAsk,
		GWMinAskDualConfirmed:  c.GuaranteedEntry.MinAskDualConfirmed,
		GWMinMarginCents:       c.GuaranteedEntry.MinMarginCents,
		GWRequireDualConfirmation: c.GuaranteedEntry.RequireDualConfirmation,
		GWMetarOnlyMinGapC:     c.GuaranteedEntry.MetarOnlyMinGapC,
		GWMetarOnlyMinGapF:     c.GuaranteedEntry.MetarOnlyMinGapF,
		GWMetarOnlyMinGapDualC: c.GuaranteedEntry.MetarOnlyMinGapDualC,
		GWMinBid:               c.GuaranteedEntry.MinBid,
	}
}

// CalibrationConfig builds a calibration.Config.
func (c *Config) CalibrationConfig() calibration.Config {
	return calibration.Config{
		DemotionMAECeilingF:    c.Calibration.DemotionMAECeilingF,
		DemotionMAECeilingC:    c.Calibration.DemotionMAECeilingC,
		RelativeDemotionFactor: c.Calibration.RelativeDemotionFactor,
		MinActiveSources:       c.Calibration.MinActiveSources,
		SoftDemotionMaxWeight:  c.Calibration.SoftDemotionMaxWeight,
		WeightMinSamples:       c.Calibration.WeightMinSamples,
		BoundedMaxMAEF:         c.Calibration.BoundedMaxMAEF,
		BoundedMaxMAEC:         c.Calibration.BoundedMaxMAEC,
		UnboundedMaxMAEF:       c.Calibration.UnboundedMaxMAEF,
		UnboundedMaxMAEC:       c.Calibration.UnboundedMaxMAEC,
		EligibilityMinSamples:  c.Calibration.EligibilityMinSamples,
		ModelCalPooledMinN:     c.Calibration.ModelCalPooledMinN,
		ModelCalCityMinN:       c.Calibration.ModelCalCityMinN,
		CityStdDevMinSamples:   c.Calibration.CityStdDevMinSamples,
		PooledStdDevMinSamples: c.Calibration.PooledStdDevMinSamples,
	}
}

// ForecastConfig builds a forecast.Config.
func (c *Config) ForecastConfig() forecast.Config {
	return forecast.Config{
		FetchTimeout:          time.Duration(c.Forecasts.FetchTimeoutSeconds) * time.Second,
		CacheTTL:              time.Duration(c.Forecasts.CacheTTLMinutes) * time.Minute,
		OutlierTrimThresholdF: c.Forecasts.OutlierTrimThresholdF,
		NWSWeightBoost:        c.Forecasts.NWSWeightBoost,
		GovSourceName:         c.Forecasts.GovSourceName,
	}
}

// ExecutorConfig builds an executor.Config.
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		TotalBankrollYes:          c.Sizing.TotalBankrollYes,
		TotalBankrollNo:           c.Sizing.TotalBankrollNo,
		KellyFractionScale:        c.Sizing.KellyFractionScale,
		MinBetDollars:             c.Sizing.MinBetDollars,
		MaxBetPctBankroll:         c.Sizing.MaxBetPctBankroll,
		NoMaxExposurePerDate:      c.Sizing.NoMaxExposurePerDate,
		MaxVolumeParticipationPct: c.Sizing.MaxVolumeParticipationPct,
		SoftVolumeCapPct:          c.Sizing.SoftVolumeCapPct,
		GWMaxBankrollPct:          c.Sizing.GWMaxBankrollPct,
		BankrollFloorDollars:      c.Sizing.BankrollFloorDollars,
	}
}

// OrchestratorIntervals returns the three loop cadences for an
// orchestrator.Config (the Cities/Dates fields are wired separately by the
// caller).
func (c *Config) OrchestratorIntervals() (scan, snapshot, observation time.Duration) {
	return time.Duration(c.Orchestrator.ScanIntervalSeconds) * time.Second,
		time.Duration(c.Orchestrator.SnapshotIntervalSeconds) * time.Second,
		time.Duration(c.Orchestrator.ObservationIntervalSeconds) * time.Second
}

// CalibrationWindowDays returns the rolling history window the
// CalibrationStore reads from.
func (c *Config) CalibrationWindowDays() int { return c.Calibration.WindowDays }

// CalibrationRefreshTTL returns the TTL between calibration refreshes.
func (c *Config) CalibrationRefreshTTL() time.Duration {
	return time.Duration(c.Calibration.RefreshTTLMinutes) * time.Minute
}
