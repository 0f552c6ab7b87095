// Package config loads bywise's node configuration: an optional YAML file
// (network/consensus/vm/storage sections, read via viper) overlaid with the
// literal environment variables of spec §6, overlaid in turn by whatever
// flags cmd/bywise was invoked with. It mirrors the teacher's two config
// shapes — pkg/config's viper-driven struct for the richer node settings,
// walletserver/config's plain os.Getenv for the small literal env list —
// combined into one loader since this node has both kinds of knob.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"bywise/pkg/utils"
)

// Version is this package's contract version, mirroring the teacher's
// pkg/config.Version convention.
const Version = "v0.1.0"

// Network holds peer-overlay settings (C11).
type Network struct {
	Port        string   `mapstructure:"port" json:"port"`
	Host        string   `mapstructure:"host" json:"host"`
	Nodes       []string `mapstructure:"nodes" json:"nodes"`
	EnableHTTPS bool     `mapstructure:"enable_https" json:"enable_https"`
	KeyPath     string   `mapstructure:"key_path" json:"key_path"`
	CertPath    string   `mapstructure:"cert_path" json:"cert_path"`
	Token       string   `mapstructure:"token" json:"token"`
}

// Consensus holds C9/C12 defaults used when a chain hasn't yet committed
// its own config:* overrides (see feeconfig.Engine).
type Consensus struct {
	ReorgWindow  uint64 `mapstructure:"reorg_window" json:"reorg_window"`
	BlockTimeSec int    `mapstructure:"block_time_sec" json:"block_time_sec"`
	BlockTxLimit int    `mapstructure:"block_tx_limit" json:"block_tx_limit"`
}

// VM holds C7 sandbox limits.
type VM struct {
	WorkerPoolSize int `mapstructure:"worker_pool_size" json:"worker_pool_size"`
	MaxReentry     int `mapstructure:"max_reentry" json:"max_reentry"`
}

// Storage holds C1 adapter settings.
type Storage struct {
	DBPath string `mapstructure:"db_path" json:"db_path"`
}

// Config is the unified node configuration.
type Config struct {
	Seed      string    `mapstructure:"seed" json:"seed"`
	Network   Network   `mapstructure:"network" json:"network"`
	Consensus Consensus `mapstructure:"consensus" json:"consensus"`
	VM        VM        `mapstructure:"vm" json:"vm"`
	Storage   Storage   `mapstructure:"storage" json:"storage"`
}

// Default returns the config used when no file and no environment override
// is present, with spec §9's suggested reorg window and a VM worker pool
// size of 10 (spec §5). No component reads VM.WorkerPoolSize; each
// vm.Invoke builds its own runtime.
func Default() Config {
	return Config{
		Network: Network{Port: "8080", Host: "0.0.0.0"},
		Consensus: Consensus{
			ReorgWindow:  12,
			BlockTimeSec: 15,
			BlockTxLimit: 5000,
		},
		VM:      VM{WorkerPoolSize: 10, MaxReentry: 5},
		Storage: Storage{DBPath: "./data"},
	}
}

// Load reads an optional YAML file at path (skipped entirely if path is
// empty), then overlays the spec §6 environment variables on top. A
// missing .env file is not an error — unlike the teacher's walletserver,
// which treats it as fatal, a node is expected to run from real env vars
// in production with no .env present at all.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		viper.SetConfigFile(path)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := viper.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("config: unmarshal %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// applyEnv overlays the literal env vars from spec §6, each only taking
// effect if actually set (an unset env var never clobbers a file value).
func applyEnv(cfg *Config) {
	cfg.Seed = utils.EnvOrDefault("SEED", cfg.Seed)
	cfg.Network.Port = utils.EnvOrDefault("PORT", cfg.Network.Port)
	cfg.Network.Host = utils.EnvOrDefault("HOST", cfg.Network.Host)
	if nodes := utils.EnvOrDefault("NODES", ""); nodes != "" {
		cfg.Network.Nodes = splitCSV(nodes)
	}
	if https := utils.EnvOrDefault("ENABLE_HTTPS", ""); https != "" {
		cfg.Network.EnableHTTPS = https == "1" || strings.EqualFold(https, "true")
	}
	cfg.Network.KeyPath = utils.EnvOrDefault("KEY_PATH", cfg.Network.KeyPath)
	cfg.Network.CertPath = utils.EnvOrDefault("CERT_PATH", cfg.Network.CertPath)
	cfg.Network.Token = utils.EnvOrDefault("TOKEN", cfg.Network.Token)

	cfg.Consensus.ReorgWindow = utils.EnvOrDefaultUint64("REORG_WINDOW", cfg.Consensus.ReorgWindow)
	cfg.Consensus.BlockTimeSec = utils.EnvOrDefaultInt("BLOCK_TIME_SEC", cfg.Consensus.BlockTimeSec)
	cfg.Consensus.BlockTxLimit = utils.EnvOrDefaultInt("BLOCK_TX_LIMIT", cfg.Consensus.BlockTxLimit)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
