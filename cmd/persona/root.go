package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"persona-mirror/internal/app"
	"persona-mirror/internal/config"
	"persona-mirror/internal/repository"
	"persona-mirror/internal/service"
)

// version se fija en build via -ldflags.
var version = "dev"

type rootFlags struct {
	store      string
	sqlitePath string
	userID     string
	verbose    bool
}

// runtime agrupa lo que los subcomandos comparten durante una ejecucion.
type runtime struct {
	logger  *zap.Logger
	store   repository.Store
	redis   *redis.Client
	persona *service.PersonaService
}

func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
	_ = r.logger.Sync()
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	var rt *runtime

	root := &cobra.Command{
		Use:   "persona",
		Short: "Persona trait modeling and mirrored chat from the terminal",
		Long:  "persona updates a per-user trait profile from each message\nand answers in a style that mirrors the user.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		Version:      version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "token" {
				return nil
			}
			var err error
			rt, err = newRuntime(cmd.Context(), flags)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			rt.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.store, "store", "", "Store driver: sqlite, memory or postgres (default from STORE_DRIVER, else sqlite)")
	pf.StringVar(&flags.sqlitePath, "sqlite-path", "", "SQLite database file (default from SQLITE_PATH)")
	pf.StringVarP(&flags.userID, "user", "u", "cli-user", "User id whose persona is read and updated")
	pf.BoolVar(&flags.verbose, "verbose", false, "Log pipeline details to stderr")

	current := func() *runtime { return rt }
	root.AddCommand(newChatCmd(flags, current))
	root.AddCommand(newReflectCmd(flags, current))
	root.AddCommand(newProfileCmd(flags, current))
	root.AddCommand(newMetricsCmd(flags, current))
	root.AddCommand(newTokenCmd(flags))
	return root
}

func newRuntime(ctx context.Context, flags *rootFlags) (*runtime, error) {
	_ = godotenv.Load()

	cfg, err := config.Parse()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// El CLI prefiere SQLite local salvo que el entorno pida otro driver.
	if os.Getenv("STORE_DRIVER") == "" {
		cfg.StoreDriver = config.StoreDriverSQLite
	}
	if flags.store != "" {
		cfg.StoreDriver = flags.store
	}
	if flags.sqlitePath != "" {
		cfg.SQLitePath = flags.sqlitePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := zap.NewNop()
	if flags.verbose {
		logger, _ = zap.NewDevelopment()
	}

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	redisClient := app.NewRedisClient(ctx, cfg, logger)
	client := app.NewLLMClient(cfg, logger)

	return &runtime{
		logger:  logger,
		store:   store,
		redis:   redisClient,
		persona: app.NewPersonaService(cfg, store, app.NewSnapshotCache(cfg, redisClient), client, logger),
	}, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
