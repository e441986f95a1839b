package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/sealbid-node/db"
	"github.com/vocdoni/sealbid-node/log"
	"github.com/vocdoni/sealbid-node/types/params"
)

const (
	defaultAPIHost        = "0.0.0.0"
	defaultAPIPort        = 9090
	defaultLogLevel       = log.LogLevelInfo
	defaultLogOutput      = "stdout"
	defaultDatadir        = ".sealbid" // prefixed with the user's home directory
	defaultDBType         = db.TypePebble
	defaultWorkers        = 2
	defaultQueueSize      = 64
	defaultClusterTimeout = 5 * time.Minute
	artifactsTimeout      = 20 * time.Minute
	monitorInterval       = 10 * time.Second
	localCallbackHost     = "127.0.0.1"
	envPrefix             = "SEALBID"
)

// Version is the build version, set at build time with -ldflags.
var Version = "dev"

// Config holds the node configuration.
type Config struct {
	API        APIConfig
	Log        LogConfig
	DB         DBConfig
	Auction    AuctionConfig
	Cluster    ClusterConfig
	Settlement SettlementConfig
	Datadir    string
}

// APIConfig holds the HTTP API configuration.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// CallbackSeed enables the callback endpoint. The local cluster then
	// reports outputs over HTTP instead of in process.
	CallbackSeed   string `mapstructure:"callbackSeed"`
	DisableLogging bool   `mapstructure:"disableLogging"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// DBConfig selects the storage driver.
type DBConfig struct {
	Type string `mapstructure:"type"`
}

// AuctionConfig holds the defaults of new auctions.
type AuctionConfig struct {
	MaxBidders int `mapstructure:"maxBidders"`
}

// ClusterConfig holds the local computation cluster configuration.
type ClusterConfig struct {
	PrivKey   string        `mapstructure:"privkey"`
	X25519Key string        `mapstructure:"x25519key"`
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queueSize"`
	Prove     bool          `mapstructure:"prove"`
	Artifacts string        `mapstructure:"artifacts"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// SettlementConfig holds the result verification options.
type SettlementConfig struct {
	RequireProof bool `mapstructure:"requireProof"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)
	v.SetDefault("db.type", defaultDBType)
	v.SetDefault("auction.maxBidders", params.DefaultMaxBidders)
	v.SetDefault("cluster.workers", defaultWorkers)
	v.SetDefault("cluster.queueSize", defaultQueueSize)
	v.SetDefault("cluster.timeout", defaultClusterTimeout)

	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.String("api.callbackSeed", "", "secret seed of the cluster callback endpoint (empty delivers in process)")
	flag.Bool("api.disableLogging", false, "disable API request logging")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for database and artifact files")
	flag.String("db.type", defaultDBType, fmt.Sprintf("database driver (%s, %s, %s)", db.TypePebble, db.TypeInMem, db.TypeMongo))
	flag.IntP("auction.maxBidders", "m", params.DefaultMaxBidders, "default bidder slots of new auctions")
	flag.StringP("cluster.privkey", "k", "", "hex secp256k1 key signing computation outputs (random if empty)")
	flag.String("cluster.x25519key", "", "hex x25519 key bids are sealed to (random if empty)")
	flag.Int("cluster.workers", defaultWorkers, "number of computation workers")
	flag.Int("cluster.queueSize", defaultQueueSize, "maximum pending computation requests")
	flag.Bool("cluster.prove", false, "attach a groth16 proof to every computation output")
	flag.String("cluster.artifacts", "", "directory with prebuilt circuit artifacts and manifest")
	flag.Duration("cluster.timeout", defaultClusterTimeout, "abort computations without callback after this time (0 disables)")
	flag.Bool("settlement.requireProof", false, "reject computation outputs without a valid proof")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sealbid-node v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: sealbid-node [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, SEALBID_CLUSTER_PRIVKEY or SEALBID_API_HOST\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Start with an ephemeral cluster identity and default settings\n")
		fmt.Fprintf(os.Stderr, "  sealbid-node\n\n")
		fmt.Fprintf(os.Stderr, "  # Start with proofs, reporting outputs over the callback endpoint\n")
		fmt.Fprintf(os.Stderr, "  sealbid-node --cluster.privkey=0x123... --cluster.prove --settlement.requireProof --api.callbackSeed=s3cr3t\n")
	}

	flag.CommandLine.SortFlags = false
	flag.Parse()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	switch cfg.DB.Type {
	case db.TypePebble, db.TypeInMem, db.TypeMongo:
	default:
		return fmt.Errorf("invalid db type %q", cfg.DB.Type)
	}
	if cfg.Auction.MaxBidders < params.MinBidders || cfg.Auction.MaxBidders > params.MaxBiddersLimit {
		return fmt.Errorf("auction.maxBidders must be in [%d, %d], got %d",
			params.MinBidders, params.MaxBiddersLimit, cfg.Auction.MaxBidders)
	}
	if cfg.Cluster.Workers <= 0 {
		return fmt.Errorf("cluster.workers must be positive")
	}
	if cfg.Cluster.QueueSize <= 0 {
		return fmt.Errorf("cluster.queueSize must be positive")
	}
	if cfg.Cluster.Timeout < 0 {
		return fmt.Errorf("cluster.timeout cannot be negative")
	}
	if cfg.Settlement.RequireProof && !cfg.Cluster.Prove {
		return fmt.Errorf("settlement.requireProof needs cluster.prove, outputs would never settle")
	}
	return nil
}
