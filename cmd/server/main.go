package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/agenthands/waygraph/internal/config"
	"github.com/agenthands/waygraph/internal/core"
	"github.com/agenthands/waygraph/internal/driver"
	"github.com/agenthands/waygraph/internal/observability"
	"github.com/agenthands/waygraph/internal/server"
	"github.com/agenthands/waygraph/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using defaults")
	}

	cfgPath := os.Getenv("WAYGRAPH_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg.ApplyEnv()

	logger := observability.NewLogger(cfg.Logger)
	defer logger.Sync()

	ctx := context.Background()

	var drv driver.GraphDriver
	if cfg.Memgraph.URI != "" {
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, logger.Named("memgraph"))
		if err != nil {
			logger.Warn("memgraph unavailable, persistence to the graph store is disabled", zap.Error(err))
		} else {
			defer d.Close(ctx)
			drv = d
		}
	}

	builder := core.NewGraphBuilder(drv, cfg, logger)
	if drv != nil {
		if err := builder.BuildIndices(ctx); err != nil {
			logger.Warn("failed to build indices", zap.Error(err))
		}
	}

	if cfg.SQLite.Path != "" {
		s, err := store.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			logger.Fatal("failed to open sqlite store", zap.String("path", cfg.SQLite.Path), zap.Error(err))
		}
		defer s.Close()
		builder.Sink = s
	}

	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.NewServer(builder, logger)
	r := srv.SetupRouter()

	logger.Info("starting server", zap.String("port", cfg.Server.Port))
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
