// clowdy-engine is the engine's process entrypoint: it loads configuration,
// opens the metadata and invocation stores, connects to the local container
// runtime, and serves the HTTP gateway until told to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/clowdy-platform/engine/internal/buildlog"
	"github.com/clowdy-platform/engine/internal/config"
	"github.com/clowdy-platform/engine/internal/containerhost"
	"github.com/clowdy-platform/engine/internal/engine"
	"github.com/clowdy-platform/engine/internal/gateway"
	"github.com/clowdy-platform/engine/internal/identity"
	"github.com/clowdy-platform/engine/internal/images"
	"github.com/clowdy-platform/engine/internal/logger"
	"github.com/clowdy-platform/engine/internal/logstore"
	"github.com/clowdy-platform/engine/internal/metadata"
	"github.com/clowdy-platform/engine/internal/store"
)

func main() {
	yamlPath := flag.String("config", "", "path to a YAML config file")
	envPath := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(*yamlPath, *envPath, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "clowdy-engine: loading config: %v\n", err)
		os.Exit(1)
	}

	level := logger.LevelInfo
	if cfg.Logs.Level == "debug" {
		level = logger.LevelDebug
	}
	log := logger.New(logger.Config{Level: level, JSON: cfg.Logs.JSON})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Error("failed to create data dir %s: %v", cfg.DataDir, err)
		os.Exit(1)
	}

	meta, err := metadata.NewStore(cfg.Metadata.DBPath)
	if err != nil {
		log.Error("failed to open metadata store: %v", err)
		os.Exit(1)
	}
	defer meta.Close()

	records, err := store.NewStore(cfg.Invocation.DBPath)
	if err != nil {
		log.Error("failed to open invocation record store: %v", err)
		os.Exit(1)
	}
	defer records.Close()

	dockerClient, err := containerhost.NewClient(containerhost.Config{
		BinaryPath:   cfg.Docker.BinaryPath,
		HostOverride: cfg.Docker.Host,
	}, log)
	if err != nil {
		log.Error("failed to reach a container runtime: %v", err)
		os.Exit(1)
	}

	imagesManager := images.NewManager(dockerClient, meta, cfg.Images.BaseRuntimeImage, cfg.Images.TagPrefix, log)
	if cfg.Images.BuildLogDir != "" {
		archive, err := buildlog.NewArchive(cfg.Images.BuildLogDir)
		if err != nil {
			log.Error("failed to open build log archive: %v", err)
			os.Exit(1)
		}
		imagesManager.WithBuildLogArchive(archive)
	}

	bootstrapCtx, cancel := context.WithTimeout(context.Background(), cfg.Docker.BuildTimeout)
	if err := imagesManager.EnsureBaseImage(bootstrapCtx); err != nil {
		cancel()
		log.Error("failed to ensure base runtime image: %v", err)
		os.Exit(1)
	}
	cancel()

	eng := engine.New(dockerClient, imagesManager, meta, records, cfg.Engine.MaxConcurrent, uuid.NewString, log)
	if cfg.Logs.LokiURL != "" {
		eng.WithLogStore(logstore.NewLokiStore(cfg.Logs.LokiURL))
		log.Info("forwarding function logs to loki at %s", cfg.Logs.LokiURL)
	}

	var identityVerifier *identity.Verifier
	if cfg.Identity.JWKSURL != "" {
		identityVerifier, err = identity.NewVerifier(identity.Config{
			JWKSURL:      cfg.Identity.JWKSURL,
			RefreshEvery: cfg.Identity.RefreshEvery,
		}, log)
		if err != nil {
			log.Error("failed to start identity verifier: %v", err)
			os.Exit(1)
		}
		log.Info("owner-scoped /stats enabled via jwks at %s", cfg.Identity.JWKSURL)
	} else {
		log.Warn("no jwks url configured, /stats will respond 503")
	}

	gw := gateway.New(meta, records, eng, identityVerifier, gateway.Config{
		HTTPPort:     cfg.Gateway.HTTPPort,
		MaxBodyBytes: cfg.Gateway.MaxBodyBytes,
	}, log)

	go func() {
		if err := gw.Start(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway server error: %v", err)
		}
	}()
	log.Info("clowdy engine listening on :%d (data dir %s)", cfg.Gateway.HTTPPort, cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	if err := gw.Stop(); err != nil {
		log.Warn("gateway shutdown: %v", err)
	}
	eng.Shutdown(30 * time.Second)
	if identityVerifier != nil {
		identityVerifier.Stop()
	}
}
