package main

import (
	"context"
	"fmt"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/blob"
	"github.com/franz/xeenaps-tracer/internal/broadcast"
	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/report"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/tracer"
	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/spf13/viper"
)

// app holds everything a command needs, built from configuration.
type app struct {
	db     *store.Store
	gw     *gateway.Client
	gcs    *blob.GCSNode
	cache  *blob.Cache
	blobs  blob.Fetcher
	ai     *aiproxy.Service // nil when no provider is configured
	bus    *broadcast.Bus
	events *report.EventLogger
	tracer *tracer.Service
}

func openApp(ctx context.Context) (*app, error) {
	dbPath := viper.GetString("db")
	util.DebugLog("Database: %s", dbPath)

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a := &app{db: db, bus: broadcast.New()}

	a.gw = newGateway()

	router := &blob.Router{Gateway: blob.NewGatewayNode(a.gw)}
	if GetConfigBool("blob.gcs") {
		node, err := blob.OpenGCSNode(ctx)
		if err != nil {
			util.WarnLog("GCS storage nodes unavailable: %v", err)
		} else {
			a.gcs = node
			router.GCS = node
		}
	}
	a.blobs = router
	if !GetConfigBool("blob.no-cache") {
		a.cache = blob.NewCache(db.DB(), router)
		if err := a.cache.EnsureSchema(); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to prepare blob cache: %w", err)
		}
		a.blobs = a.cache
	}

	caller, err := newCaller(a.gw)
	if err != nil {
		util.WarnLog("AI features disabled: %v", err)
	} else {
		a.ai = aiproxy.NewService(caller, aiproxy.Options{
			Model:   GetConfigString("ai.model", aiproxy.DefaultModel),
			Gateway: a.gw,
			Blobs:   a.blobs,
		})
	}

	if dir := GetConfigString("events.dir", ""); dir != "" {
		level := report.EventLevel(GetConfigString("events.level", string(report.LevelInfo)))
		a.events, err = report.NewEventLogger(dir, level)
		if err != nil {
			util.WarnLog("Event log disabled: %v", err)
		} else {
			util.DebugLog("Event log: %s", a.events.Path())
		}
	}

	opts := tracer.Options{
		Store:  db,
		Blobs:  a.blobs,
		Bus:    a.bus,
		Events: a.events,
	}
	if a.ai != nil {
		opts.AI = a.ai
	}
	if a.gw.Configured() {
		opts.Renderer = a.gw
	}
	a.tracer = tracer.NewService(opts)

	return a, nil
}

// requireAI fails with a configuration error when no AI provider is set.
func (a *app) requireAI() error {
	if a.ai == nil {
		return fmt.Errorf("no AI provider configured (set gateway.url or ai.provider=openai): %w", util.ErrInvalidConfig)
	}
	return nil
}

func (a *app) Close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.gcs != nil {
		a.gcs.Close()
	}
	a.db.Close()
}

func newGateway() *gateway.Client {
	return gateway.NewClient(gateway.Options{
		BaseURL: GetConfigString("gateway.url", ""),
		Timeout: GetConfigDuration("gateway.timeout", gateway.DefaultTimeout),
		Rate:    GetConfigFloat("gateway.rate", gateway.DefaultRate),
	})
}

// newCaller picks the AI transport: the gateway proxy by default, or any
// OpenAI-compatible endpoint with ai.provider=openai.
func newCaller(gw *gateway.Client) (aiproxy.Caller, error) {
	switch provider := GetConfigString("ai.provider", "gateway"); provider {
	case "gateway":
		if !gw.Configured() {
			return nil, fmt.Errorf("gateway.url not set: %w", util.ErrInvalidConfig)
		}
		return aiproxy.NewGatewayCaller(gw), nil
	case "openai":
		return aiproxy.NewOpenAICaller(aiproxy.OpenAIOptions{
			APIKey:  GetConfigString("ai.api_key", ""),
			BaseURL: GetConfigString("ai.base_url", ""),
			Model:   GetConfigString("ai.openai_model", ""),
		})
	default:
		return nil, fmt.Errorf("unknown ai.provider %q: %w", provider, util.ErrInvalidConfig)
	}
}
