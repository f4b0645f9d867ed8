package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/omairakapasha/EventAI-sub001/internal/infra/config"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/database"
	"github.com/omairakapasha/EventAI-sub001/internal/infra/logger"
)

func main() {
	var (
		command = flag.String("command", "up", "Migration command: up, down, version, force")
		steps   = flag.Int("steps", 0, "Number of migration steps (for up/down)")
		version = flag.Int("version", -1, "Target version (for force command)")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.App.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	migrator, err := database.NewMigrator(cfg.Postgres.DSN(), zl)
	if err != nil {
		zl.Fatal("failed to init migrator", zap.Error(err))
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			zl.Warn("close migrator", zap.Error(err))
		}
	}()

	switch *command {
	case "up":
		err = migrator.Up(*steps)
	case "down":
		err = migrator.Down(*steps)
	case "version":
		var (
			v     uint
			dirty bool
		)
		v, dirty, err = migrator.Version()
		if err == nil {
			zl.Info("current migration version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		}
	case "force":
		if *version < 0 {
			zl.Fatal("version required for force command (use -version flag)")
		}
		err = migrator.Force(*version)
	default:
		zl.Fatal("unknown command, supported: up, down, version, force", zap.String("command", *command))
	}
	if err != nil {
		zl.Fatal("migration failed", zap.String("command", *command), zap.Error(err))
	}
}
