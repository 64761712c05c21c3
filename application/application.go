package application

import (
	"context"
	"fmt"
	"os"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/lk2023060901/fixture-garden-go/internal/storage"
	zlog "github.com/lk2023060901/fixture-garden-go/pkg/log"
	zetcd "github.com/lk2023060901/fixture-garden-go/pkg/util/etcd"
	"github.com/lk2023060901/fixture-garden-go/pkg/util/merr"
	zviper "github.com/lk2023060901/fixture-garden-go/pkg/util/viper"
)

// Application is the main runtime container for a Zeus fixture service.
// It owns configuration, logging, and the store backend used by dump/load.
type Application struct {
	cfg     *zviper.Config
	loggers map[string]*zlog.MLogger
}

// StorageConfig selects and configures the store backend under the
// "storage" config key.
type StorageConfig struct {
	// Backend is one of "memory" (default) and "etcd".
	Backend string     `mapstructure:"backend"`
	Etcd    EtcdConfig `mapstructure:"etcd"`
}

// EtcdConfig configures the etcd-backed store.
type EtcdConfig struct {
	Endpoints []string `mapstructure:"endpoints"`
	// Root is the key prefix all fixture data lives under.
	Root string `mapstructure:"root"`

	// UseEmbed starts an embedded etcd server instead of dialing Endpoints.
	UseEmbed   bool   `mapstructure:"useembed"`
	ConfigPath string `mapstructure:"configpath"`
	DataDir    string `mapstructure:"datadir"`
	LogPath    string `mapstructure:"logpath"`
	LogLevel   string `mapstructure:"loglevel"`
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run is the entry of Zeus application.
// It parses command-line arguments (os.Args) and loads configuration file
// using the following priority:
//   1. Default: ./config.yaml
//   2. Env: ZEUS_CONFIG_FILE_PATH
//   3. CLI: --config <path> or --config=<path>
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}

	return nil
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if a.loggers == nil {
		return &zlog.MLogger{Logger: zlog.L()}
	}
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// OpenStore builds the store backend selected by the "storage" config key.
// Without configuration it falls back to an in-memory store.
func (a *Application) OpenStore(ctx context.Context) (storage.Store, error) {
	sc := &StorageConfig{}
	if a.cfg != nil {
		if err := a.cfg.UnmarshalKey("storage", sc); err != nil {
			return nil, err
		}
	}

	switch sc.Backend {
	case "", "memory":
		return storage.NewMemoryStore(), nil
	case "etcd":
		return a.openEtcdStore(ctx, &sc.Etcd)
	default:
		return nil, merr.WrapErrParameterInvalid("memory|etcd", sc.Backend, "unknown storage backend")
	}
}

func (a *Application) openEtcdStore(ctx context.Context, ec *EtcdConfig) (storage.Store, error) {
	root := ec.Root
	if root == "" {
		root = "/fixtures"
	}

	var client *clientv3.Client
	if ec.UseEmbed {
		if err := zetcd.InitEtcdServer(true, ec.ConfigPath, ec.DataDir, ec.LogPath, ec.LogLevel); err != nil {
			return nil, err
		}
		c, err := zetcd.GetEmbedEtcdClient()
		if err != nil {
			return nil, err
		}
		client = c
	} else {
		c, err := clientv3.New(clientv3.Config{Endpoints: ec.Endpoints})
		if err != nil {
			return nil, err
		}
		client = c
	}

	return storage.NewEtcdStore(ctx, client, root)
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := "./config.yaml"
	explicit := false

	if envPath := os.Getenv("ZEUS_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
		explicit = true
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
	}

	// The default path is optional; an explicitly named file must exist.
	if !explicit {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, nil
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}

	return cfg, nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	if err := a.initModuleLoggersFromConfig(); err != nil {
		return err
	}
	return nil
}

// initGlobalLoggerFromEnv configures the process-wide logger based on ZEUS_LOG_* env vars.
//
// Priority:
//   - ZEUS_LOG_ENABLE: "1"/"true" to enable outputs; others treated as disabled.
//   - ZEUS_LOG_LEVEL: log level (default "info").
//   - ZEUS_LOG_STDOUT: whether to log to stdout (default false).
//   - ZEUS_LOG_FILE_DIR: log directory.
//   - ZEUS_LOG_FILE: log file name (empty means no file).
//   - ZEUS_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("ZEUS_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:               getenvDefault("ZEUS_LOG_LEVEL", "info"),
		Format:              getenvDefault("ZEUS_LOG_FORMAT", "text"),
		DisableTimestamp:    false,
		Stdout:              getenvBool("ZEUS_LOG_STDOUT", false),
		DisableCaller:       false,
		DisableStacktrace:   false,
		DisableErrorVerbose: true,
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("ZEUS_LOG_FILE_DIR", ""),
			Filename: getenvDefault("ZEUS_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//   logging:
//     game:
//       level: debug
//       stdout: true
//       file:
//         rootpath: ./logs
//         filename: game.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	// Unmarshal "logging" section into a map[name]Config.
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		// If the key doesn't exist, UnmarshalKey typically leaves raw empty without error.
		// Any real error should be returned.
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
