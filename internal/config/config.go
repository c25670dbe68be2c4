package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Trading TradingConfig `mapstructure:"trading"`
	Signals SignalsConfig `mapstructure:"signals"`
	EVM     EVMConfig     `mapstructure:"evm"`
	Solana  SolanaConfig  `mapstructure:"solana"`
	TEE     TEEConfig     `mapstructure:"tee"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Lock    LockConfig    `mapstructure:"lock"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// TradingConfig holds the engine-wide safety thresholds. Disabled is the
// kill switch and defaults to true.
type TradingConfig struct {
	Disabled             bool          `mapstructure:"disabled"`
	CycleCron            string        `mapstructure:"cycle_cron"`
	MaxSlippageBps       int           `mapstructure:"max_slippage_bps"`
	SignalMaxAge         time.Duration `mapstructure:"signal_max_age"`
	MaxPriceDeviationPct float64       `mapstructure:"max_price_deviation_pct"`
	Concurrency          int           `mapstructure:"concurrency"`
	TaskTimeout          time.Duration `mapstructure:"task_timeout"`
	RunOnStart           bool          `mapstructure:"run_on_start"`
}

type SignalsConfig struct {
	ETHURL  string        `mapstructure:"eth_url"`
	SOLURL  string        `mapstructure:"sol_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type EVMConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	Router         string        `mapstructure:"router"`
	USDC           string        `mapstructure:"usdc"`
	WETH           string        `mapstructure:"weth"`
	Deadline       time.Duration `mapstructure:"deadline"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

type SolanaConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	WSURL             string        `mapstructure:"ws_url"`
	Commitment        string        `mapstructure:"commitment"`
	JupiterQuoteURL   string        `mapstructure:"jupiter_quote_url"`
	JupiterSwapURL    string        `mapstructure:"jupiter_swap_url"`
	JupiterAPIKey     string        `mapstructure:"jupiter_api_key"`
	MinFeeLamports    uint64        `mapstructure:"min_fee_lamports"`
	QuoteTimeout      time.Duration `mapstructure:"quote_timeout"`
	SwapTimeout       time.Duration `mapstructure:"swap_timeout"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

type TEEConfig struct {
	Mock      bool   `mapstructure:"mock"`
	Socket    string `mapstructure:"socket"`
	DevSecret string `mapstructure:"dev_secret"`
}

type AuditConfig struct {
	RPCURL   string `mapstructure:"rpc_url"`
	ChainID  int64  `mapstructure:"chain_id"`
	Contract string `mapstructure:"contract"`
	GasLimit uint64 `mapstructure:"gas_limit"`
}

type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

func Load(path string, envOnly bool) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PAWPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	setDefaults(v)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8004")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	// Trading stays off until an operator flips the kill switch explicitly.
	v.SetDefault("trading.disabled", true)
	v.SetDefault("trading.cycle_cron", "0 0 */4 * * *")
	v.SetDefault("trading.max_slippage_bps", 100)
	v.SetDefault("trading.signal_max_age", "10m")
	v.SetDefault("trading.max_price_deviation_pct", 5.0)
	v.SetDefault("trading.concurrency", 3)
	v.SetDefault("trading.task_timeout", "3m")
	v.SetDefault("trading.run_on_start", false)

	v.SetDefault("signals.eth_url", "https://pawpad-arcium-backend.onrender.com/api/signals/ETH")
	v.SetDefault("signals.sol_url", "https://pawpad-arcium-backend.onrender.com/api/signals/SOL")
	v.SetDefault("signals.timeout", "10s")

	v.SetDefault("evm.rpc_url", "https://mainnet.base.org")
	v.SetDefault("evm.chain_id", 8453)
	v.SetDefault("evm.router", "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24")
	v.SetDefault("evm.usdc", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	v.SetDefault("evm.weth", "0x4200000000000000000000000000000000000006")
	v.SetDefault("evm.deadline", "20m")
	v.SetDefault("evm.confirm_timeout", "2m")
	v.SetDefault("evm.poll_interval", "2s")

	v.SetDefault("solana.rpc_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("solana.ws_url", "")
	v.SetDefault("solana.commitment", "confirmed")
	v.SetDefault("solana.jupiter_quote_url", "https://api.jup.ag/swap/v1/quote")
	v.SetDefault("solana.jupiter_swap_url", "https://api.jup.ag/swap/v1/swap")
	v.SetDefault("solana.jupiter_api_key", "")
	v.SetDefault("solana.min_fee_lamports", 2_000_000)
	v.SetDefault("solana.quote_timeout", "15s")
	v.SetDefault("solana.swap_timeout", "30s")
	v.SetDefault("solana.confirm_timeout", "90s")
	v.SetDefault("solana.requests_per_second", 5.0)

	v.SetDefault("tee.mock", false)
	v.SetDefault("tee.socket", "/run/rofl-appd.sock")
	v.SetDefault("tee.dev_secret", "dev")

	v.SetDefault("audit.rpc_url", "https://testnet.sapphire.oasis.io")
	v.SetDefault("audit.chain_id", 0x5aff)
	v.SetDefault("audit.contract", "")
	v.SetDefault("audit.gas_limit", 500000)

	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.ttl", "30m")
}
