package config

import (
	"fmt"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/dcavault/internal/application/engine"
	"github.com/alejandrodnm/dcavault/internal/application/keeper"
	"github.com/alejandrodnm/dcavault/internal/domain"
)

const (
	VenuePaper   = "paper"
	VenueGateway = "gateway"
)

// Config es la configuración completa del servicio.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Keeper  KeeperConfig  `yaml:"keeper"`
	Venue   string        `yaml:"venue"` // paper | gateway
	Gateway GatewayConfig `yaml:"gateway"`
	Paper   PaperConfig   `yaml:"paper"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig holds the engine settings. Rates are decimal strings ("0.0165").
type EngineConfig struct {
	Admin                  string               `yaml:"admin"`
	Paused                 bool                 `yaml:"paused"`
	DefaultSwapFee         string               `yaml:"default_swap_fee"`
	DelegationFee          string               `yaml:"delegation_fee"`
	FeeCollectors          []FeeCollectorConfig `yaml:"fee_collectors"`
	DcaPlusEscrowLevel     string               `yaml:"dca_plus_escrow_level"`
	SwapAdjustmentTTLHours int                  `yaml:"swap_adjustment_ttl_hours"`
	DefaultPageLimit       int                  `yaml:"default_page_limit"`
}

// FeeCollectorConfig is one fee recipient and its share.
type FeeCollectorConfig struct {
	Address    string `yaml:"address"`
	Allocation string `yaml:"allocation"`
}

// KeeperConfig controla el loop del keeper.
type KeeperConfig struct {
	PollIntervalSeconds     int `yaml:"poll_interval_seconds"`
	BatchLimit              int `yaml:"batch_limit"`
	IterationTimeoutSeconds int `yaml:"iteration_timeout_seconds"`
}

// GatewayConfig points at the venue/bank HTTP gateway.
type GatewayConfig struct {
	BaseURL         string  `yaml:"base_url"`
	QueryRatePerSec float64 `yaml:"query_rate_per_sec"`
	TxRatePerSec    float64 `yaml:"tx_rate_per_sec"`
}

// PaperConfig configura el venue simulado.
type PaperConfig struct {
	Spread string            `yaml:"spread"`
	Prices map[string]string `yaml:"prices"` // pair address -> quote per base
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN      string `yaml:"dsn"`       // ruta al archivo SQLite, o ":memory:"
	PaperDSN string `yaml:"paper_dsn"` // ledger del venue simulado
}

// MetricsConfig controls the Prometheus endpoint. An empty address disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
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

	if cfg.Venue != VenuePaper && cfg.Venue != VenueGateway {
		return nil, fmt.Errorf("config.Load: unknown venue %q", cfg.Venue)
	}
	return &cfg, nil
}

// EngineConfig parses the engine section into the engine's own config.
func (c *Config) EngineConfig() (engine.Config, error) {
	var (
		out = engine.Config{
			Admin:             c.Engine.Admin,
			Paused:            c.Engine.Paused,
			SwapAdjustmentTTL: time.Duration(c.Engine.SwapAdjustmentTTLHours) * time.Hour,
			DefaultPageLimit:  c.Engine.DefaultPageLimit,
		}
		err error
	)
	if out.DefaultSwapFee, err = parseDec("engine.default_swap_fee", c.Engine.DefaultSwapFee); err != nil {
		return engine.Config{}, err
	}
	if out.DelegationFee, err = parseDec("engine.delegation_fee", c.Engine.DelegationFee); err != nil {
		return engine.Config{}, err
	}
	if out.DcaPlusEscrowLevel, err = parseDec("engine.dca_plus_escrow_level", c.Engine.DcaPlusEscrowLevel); err != nil {
		return engine.Config{}, err
	}
	for i, fc := range c.Engine.FeeCollectors {
		alloc, err := parseDec(fmt.Sprintf("engine.fee_collectors[%d].allocation", i), fc.Allocation)
		if err != nil {
			return engine.Config{}, err
		}
		out.FeeCollectors = append(out.FeeCollectors, domain.FeeCollector{Address: fc.Address, Allocation: alloc})
	}
	if err := out.Validate(); err != nil {
		return engine.Config{}, fmt.Errorf("config.EngineConfig: %w", err)
	}
	return out, nil
}

// KeeperConfig returns the keeper settings. Sweeps are signed by the engine admin.
func (c *Config) KeeperConfig(dryRun bool) keeper.Config {
	return keeper.Config{
		PollInterval:     time.Duration(c.Keeper.PollIntervalSeconds) * time.Second,
		BatchLimit:       c.Keeper.BatchLimit,
		IterationTimeout: time.Duration(c.Keeper.IterationTimeoutSeconds) * time.Second,
		Admin:            c.Engine.Admin,
		DryRun:           dryRun,
	}
}

// ParseSpread parses the simulated slippage.
func (p PaperConfig) ParseSpread() (sdkmath.LegacyDec, error) {
	return parseDec("paper.spread", p.Spread)
}

// ParsePrices parses the initial simulated quotes.
func (p PaperConfig) ParsePrices() (map[string]sdkmath.LegacyDec, error) {
	out := make(map[string]sdkmath.LegacyDec, len(p.Prices))
	for pair, s := range p.Prices {
		price, err := parseDec("paper.prices."+pair, s)
		if err != nil {
			return nil, err
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("config: paper.prices.%s must be positive", pair)
		}
		out[pair] = price
	}
	return out, nil
}

func parseDec(key, s string) (sdkmath.LegacyDec, error) {
	d, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("config: %s: %q is not a decimal: %w", key, s, err)
	}
	return d, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("DCA_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("DCA_GATEWAY_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("DCA_ADMIN"); v != "" {
		cfg.Engine.Admin = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.DefaultSwapFee == "" {
		cfg.Engine.DefaultSwapFee = "0.0165"
	}
	if cfg.Engine.DelegationFee == "" {
		cfg.Engine.DelegationFee = "0.0075"
	}
	if cfg.Engine.DcaPlusEscrowLevel == "" {
		cfg.Engine.DcaPlusEscrowLevel = "0.05"
	}
	if cfg.Engine.SwapAdjustmentTTLHours <= 0 {
		cfg.Engine.SwapAdjustmentTTLHours = 24
	}
	if cfg.Engine.DefaultPageLimit <= 0 {
		cfg.Engine.DefaultPageLimit = 30
	}
	if len(cfg.Engine.FeeCollectors) == 0 && cfg.Engine.Admin != "" {
		cfg.Engine.FeeCollectors = []FeeCollectorConfig{{Address: cfg.Engine.Admin, Allocation: "1"}}
	}
	if cfg.Keeper.PollIntervalSeconds <= 0 {
		cfg.Keeper.PollIntervalSeconds = 30
	}
	if cfg.Keeper.BatchLimit <= 0 {
		cfg.Keeper.BatchLimit = 30
	}
	if cfg.Keeper.IterationTimeoutSeconds <= 0 {
		cfg.Keeper.IterationTimeoutSeconds = 60
	}
	if cfg.Venue == "" {
		cfg.Venue = VenuePaper
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "http://localhost:1317"
	}
	if cfg.Paper.Spread == "" {
		cfg.Paper.Spread = "0"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "dcavault.db"
	}
	if cfg.Storage.PaperDSN == "" {
		cfg.Storage.PaperDSN = "dcavault_paper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
