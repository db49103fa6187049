package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ad-tracker/youtube-subscription-sync-go/internal/config"
	"github.com/ad-tracker/youtube-subscription-sync-go/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

func main() {
	var (
		dbURL          string
		migrationsPath string
		direction      string
		steps          int
		forceVersion   int
	)

	flag.StringVar(&dbURL, "db", "", "Database URL (defaults to the configured database)")
	flag.StringVar(&migrationsPath, "path", "./migrations", "Path to migrations directory")
	flag.StringVar(&direction, "direction", "up", "Migration direction: up, down, version, or force")
	flag.IntVar(&steps, "steps", 0, "Number of steps to migrate (0 means all)")
	flag.IntVar(&forceVersion, "version", -1, "Version to force when -direction=force")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if dbURL == "" {
		dbURL = cfg.Database.DatabaseURL()
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), dbURL)
	if err != nil {
		logger.Log.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "force":
		if forceVersion < 0 {
			logger.Log.Fatal("-version is required with -direction=force")
		}
		err = m.Force(forceVersion)
	case "version":
	default:
		logger.Log.Fatal("Invalid direction (must be up, down, version, or force)", zap.String("direction", direction))
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Log.Fatal("Migration failed", zap.String("direction", direction), zap.Error(err))
	}

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Log.Info("Migration completed successfully (no version)")
		return
	}
	if err != nil {
		logger.Log.Fatal("Failed to get migration version", zap.Error(err))
	}

	logger.Log.Info("Migration completed successfully",
		zap.Uint("version", version),
		zap.Bool("dirty", dirty),
	)
}
