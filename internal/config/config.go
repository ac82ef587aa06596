package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      LoggingConfig  `yaml:"log"`
	REST     RESTConfig     `yaml:"rest"`
	WS       WSConfig       `yaml:"ws"`
	State    StateConfig    `yaml:"state"`
	Strategy StrategyConfig `yaml:"strategy"`
	Telegram TelegramConfig `yaml:"telegram"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Recorder RecorderConfig `yaml:"recorder"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RESTConfig struct {
	SpotBaseURL    string        `yaml:"spot_base_url"`
	FuturesBaseURL string        `yaml:"futures_base_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

type WSConfig struct {
	Enabled        bool          `yaml:"enabled"`
	SpotURL        string        `yaml:"spot_url"`
	FuturesURL     string        `yaml:"futures_url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	MaxQuoteAge    time.Duration `yaml:"max_quote_age"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type StrategyConfig struct {
	Coin           string             `yaml:"coin"`
	FutureDate     string             `yaml:"future_date"`
	PricePrecision int                `yaml:"price_precision"`
	Slippage       float64            `yaml:"slippage"`
	SpotFeeRate    float64            `yaml:"spot_fee_rate"`
	FuturesFeeRate float64            `yaml:"futures_fee_rate"`
	Multipliers    map[string]float64 `yaml:"multipliers"`
	Amount         float64            `yaml:"amount"`
	MaxExecutions  int                `yaml:"max_executions"`
	Threshold      float64            `yaml:"threshold"`
	MaxRetries     int                `yaml:"max_retries"`
	RetryBackoff   time.Duration      `yaml:"retry_backoff"`
	PollInterval   time.Duration      `yaml:"poll_interval"`
	SettleDelay    time.Duration      `yaml:"settle_delay"`
	RestartDelay   time.Duration      `yaml:"restart_delay"`
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type RecorderConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// SpotSymbol is the ticker form, eg. BTCUSDT.
func (s StrategyConfig) SpotSymbol() string {
	return s.Coin + "USDT"
}

// FuturesSymbol is the coin-margined contract, eg. BTCUSD_210625.
func (s StrategyConfig) FuturesSymbol() string {
	return s.Coin + "USD_" + s.FutureDate
}

// Multiplier is the coin amount represented by one contract for the
// configured coin.
func (s StrategyConfig) Multiplier() (float64, error) {
	m, ok := s.Multipliers[s.Coin]
	if !ok || m <= 0 {
		return 0, fmt.Errorf("no contract multiplier configured for %s", s.Coin)
	}
	return m, nil
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.REST.SpotBaseURL == "" {
		cfg.REST.SpotBaseURL = "https://api.binance.com"
	}
	if cfg.REST.FuturesBaseURL == "" {
		cfg.REST.FuturesBaseURL = "https://dapi.binance.com"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.WS.SpotURL == "" {
		cfg.WS.SpotURL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.WS.FuturesURL == "" {
		cfg.WS.FuturesURL = "wss://dstream.binance.com/ws"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.MaxQuoteAge == 0 {
		cfg.WS.MaxQuoteAge = 5 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/bn-basis-bot.db"
	}
	if cfg.Strategy.MaxRetries == 0 {
		cfg.Strategy.MaxRetries = 5
	}
	if cfg.Strategy.RetryBackoff == 0 {
		cfg.Strategy.RetryBackoff = time.Second
	}
	if cfg.Strategy.PollInterval == 0 {
		cfg.Strategy.PollInterval = 2 * time.Second
	}
	if cfg.Strategy.SettleDelay == 0 {
		cfg.Strategy.SettleDelay = 2 * time.Second
	}
	if cfg.Strategy.RestartDelay == 0 {
		cfg.Strategy.RestartDelay = 2 * time.Second
	}
	if cfg.Recorder.Schema == "" {
		cfg.Recorder.Schema = "public"
	}
	if cfg.Recorder.QueueSize == 0 {
		cfg.Recorder.QueueSize = 256
	}
}

func validate(cfg *Config) error {
	s := cfg.Strategy
	if s.Coin == "" {
		return errors.New("strategy.coin is required")
	}
	if s.FutureDate == "" {
		return errors.New("strategy.future_date is required")
	}
	if s.Amount <= 0 {
		return errors.New("strategy.amount must be > 0")
	}
	if s.MaxExecutions <= 0 {
		return errors.New("strategy.max_executions must be > 0")
	}
	if s.MaxRetries <= 0 {
		return errors.New("strategy.max_retries must be > 0")
	}
	if s.PricePrecision < 0 {
		return errors.New("strategy.price_precision must be >= 0")
	}
	if s.Slippage < 0 || s.SpotFeeRate < 0 || s.FuturesFeeRate < 0 || s.Threshold < 0 {
		return errors.New("strategy rates and threshold must be >= 0")
	}
	if _, err := s.Multiplier(); err != nil {
		return err
	}
	if cfg.Recorder.Enabled && cfg.Recorder.DSN == "" {
		return errors.New("recorder.dsn is required when recorder is enabled")
	}
	return nil
}
