package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/cooldown"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/logger"
	"github.com/lazypower/rapport/internal/service"
	"github.com/lazypower/rapport/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	dbFlag   string
	logLevel string

	cfg       config.Config
	logr      = zerolog.Nop()
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "rapport",
	Short: "Relationship scoring and reminder engine",
	Long: "Rapport scores how healthy your relationships are from logged interactions " +
		"and reminds you when it is time to reach out.",
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default ~/.rapport/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (overrides config and RAPPORT_DB)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(remindCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(ruleCmd)
	rootCmd.AddCommand(contactCmd)
}

// setup resolves configuration (defaults, file, .env, environment, flags in
// increasing precedence) and installs the logger.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(".env"); err != nil {
		return err
	}

	path := cfgPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return fmt.Errorf("resolve config path: %w", err)
		}
		path = p
	}
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := loaded.ApplyEnv(); err != nil {
		return err
	}
	if dbFlag != "" {
		loaded.Database.Path = dbFlag
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}

	l, closer, err := logger.Init(loaded.Log)
	if err != nil {
		return err
	}
	cfg, logr, logCloser = loaded, l, closer
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

// runtime is the opened store plus the service over it.
type runtime struct {
	db    *store.DB
	svc   *service.Service
	redis *redis.Client
}

func (r *runtime) Close() error {
	if r.redis != nil {
		r.redis.Close()
	}
	return r.db.Close()
}

// openRuntime opens the database and, when configured, the Redis cooldown
// index, and builds the service over them.
func openRuntime(ctx context.Context) (*runtime, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	scorer, err := engine.NewScorer(cfg.Scorer)
	if err != nil {
		return nil, fmt.Errorf("scorer config: %w", err)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rt := &runtime{db: db}

	opts := []service.Option{service.WithLogger(logr)}
	if cfg.Redis.URL != "" {
		client, err := cooldown.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			db.Close()
			return nil, err
		}
		rt.redis = client
		idx := cooldown.New(client, cfg.Redis.Prefix, cfg.SchedulerSettings().Cooldown)
		opts = append(opts, service.WithCooldownIndex(idx))
		logr.Debug().Str("prefix", cfg.Redis.Prefix).Msg("cli: redis cooldown index enabled")
	}

	rt.svc = service.New(db, scorer, opts...)
	return rt, nil
}
