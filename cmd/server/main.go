// Package main provides the entry point for the claudeproxy server: a
// protocol-translating reverse proxy that speaks Claude Messages to clients
// and Claude, OpenAI, OpenAI-legacy, or Gemini to upstream providers, with
// per-channel key failover.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claudeproxy/claudeproxy/internal/adapter"
	"github.com/claudeproxy/claudeproxy/internal/adapter/claudeapi"
	"github.com/claudeproxy/claudeproxy/internal/adapter/gemini"
	"github.com/claudeproxy/claudeproxy/internal/adapter/openai"
	"github.com/claudeproxy/claudeproxy/internal/adapter/openaiold"
	"github.com/claudeproxy/claudeproxy/internal/api"
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/claudeproxy/claudeproxy/internal/keysched"
	"github.com/claudeproxy/claudeproxy/internal/keystore"
	"github.com/claudeproxy/claudeproxy/internal/logging"
	"github.com/claudeproxy/claudeproxy/internal/router"
	"github.com/claudeproxy/claudeproxy/internal/scheduler"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	var configPath string
	var keystorePath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	flag.StringVar(&keystorePath, "keystore", "", "optional path to a bbolt database persisting the key scheduler's failed-key set")
	flag.Parse()

	logging.SetupBaseLogger()

	color.Green("claudeproxy %s (%s, built %s)", Version, Commit, BuildDate)
	log.Infof("claudeproxy %s (%s, built %s)", Version, Commit, BuildDate)

	store, err := config.NewStore(configPath)
	if err != nil {
		log.Fatalf("failed to load config %q: %v", configPath, err)
	}
	if err := logging.ConfigureLogOutput(store.Get().LogFile); err != nil {
		log.Warnf("failed to configure log output: %v", err)
	}

	registry := adapter.NewRegistry()
	registry.Register(config.ServiceClaude, claudeapi.New())
	registry.Register(config.ServiceOpenAI, openai.New())
	registry.Register(config.ServiceOpenAIOld, openaiold.New())
	registry.Register(config.ServiceGemini, gemini.New())

	var sched *keysched.Scheduler
	if keystorePath != "" {
		store2, err := keystore.Open(keystorePath)
		if err != nil {
			log.Fatalf("failed to open keystore %q: %v", keystorePath, err)
		}
		defer store2.Close()
		sched = keysched.NewWithStore(store2)
		for _, ch := range store.Get().Upstreams {
			sched.Restore(ch.Name)
		}
	} else {
		sched = keysched.New()
	}

	rtr := router.New(registry, sched)
	srv := api.New(store, registry, sched, rtr)

	stopWatch := make(chan struct{})
	go func() {
		if err := store.Watch(stopWatch); err != nil {
			log.Warnf("config watch stopped: %v", err)
		}
	}()

	reloadNet, err := scheduler.NewReloadSafetyNet(store, "*/5 * * * *")
	if err != nil {
		log.Warnf("failed to start periodic reload safety net: %v", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", store.Get().Port),
		Handler: srv.Engine(),
	}

	go func() {
		log.Infof("listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	close(stopWatch)
	if reloadNet != nil {
		reloadNet.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
}
