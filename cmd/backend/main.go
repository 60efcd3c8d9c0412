package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"metatiled/internal/layers"
	"metatiled/internal/metatile"
	"metatiled/internal/pkg/logger"
	"metatiled/internal/pkg/shutdown"
	"metatiled/internal/statusapi"
	"metatiled/internal/storage"
	"metatiled/internal/worker"
	"metatiled/internal/worker/journal"
	"metatiled/internal/worker/notify"
	"metatiled/internal/worker/processor"
	"metatiled/internal/worker/renderer"
)

func main() {
	cfg, err := worker.LoadConfig()

	logCfg := logger.DefaultConfig()
	logCfg.Output = os.Stderr
	if cfg.Name != "" {
		logCfg.ServiceName = "metatile-backend-" + cfg.Name
	}
	if cfg.Debug {
		logCfg.Level = "debug"
	}
	log := logger.New(logCfg)

	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	reg, err := layers.Load(cfg.MapConfig)
	if err != nil {
		log.LogFatal("failed to load map config", err, "path", cfg.MapConfig)
	}
	if err := reg.RequireRenderer(cfg.RendererURL); err != nil {
		log.LogFatal("map config incomplete", err, "path", cfg.MapConfig)
	}
	log.Info("map config loaded", "path", cfg.MapConfig, "layers", reg.Names())

	layerURLs := make(map[string]string)
	for _, name := range reg.Names() {
		if l, _ := reg.Layer(name); l.RendererURL != "" {
			layerURLs[name] = l.RendererURL
		}
	}
	rc := renderer.NewHTTPClient(cfg.RendererURL, cfg.RenderTimeout, layerURLs)

	checks := map[string]statusapi.Check{}

	var jrnl processor.Journal
	if cfg.DatabaseURL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.RegisterSimple("postgres", pool.Close)

		j := journal.New(pool, cfg.Name)
		if err := j.EnsureSchema(ctx); err != nil {
			log.Warn("journal schema not ready, continuing", "error", err.Error())
		}
		jrnl = j
		checks["postgres"] = pool.Ping
	}

	var notifier processor.Notifier
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		notifier = notify.NewRedisNotifier(rdb, cfg.RedisChannel)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	store := storage.NewPrimary(cfg.TileDir)
	mirror, err := storage.NewMirror(ctx)
	if err != nil {
		log.LogFatal("failed to initialize storage mirror", err)
	}
	if mirror != nil {
		log.Info("storage mirror enabled", "provider", mirror.Provider())
	}
	checks["storage"] = func(context.Context) error {
		_, err := os.Stat(store.Root())
		return err
	}

	proc := processor.New(processor.Deps{
		Encoder: metatile.NewEncoder(metatile.EncoderDeps{
			Layers:   reg,
			Renderer: rc,
			Workers:  cfg.Workers,
			Log:      log,
		}),
		Store:    store,
		Mirror:   mirror,
		Journal:  jrnl,
		Notifier: notifier,
		// Mirror, journal and notify calls run on the request loop.
		SideEffectTimeout: cfg.SideEffectTimeout,
		Size:              cfg.Size,
		Log:               log,
	})

	conn, err := worker.OpenSocket(cfg)
	if err != nil {
		log.LogFatal("failed to open dispatcher socket", err)
	}
	shutdownMgr.Register("socket", func(context.Context) error {
		return conn.Close()
	})

	heartbeat := worker.OpenHeartbeat(cfg.PipeFD)
	if heartbeat != nil {
		shutdownMgr.Register("heartbeat", func(context.Context) error {
			return heartbeat.Close()
		})
	} else {
		log.Warn("no supervisor pipe configured, heartbeats disabled")
	}

	srv := worker.NewServer(worker.ServerDeps{
		Conn:         conn,
		Heartbeat:    heartbeat,
		Processor:    proc,
		AliveTimeout: cfg.AliveTimeout,
		Debug:        cfg.Debug,
		Log:          log,
	})

	if cfg.StatusAddr != "" {
		httpSrv := statusapi.NewServer(cfg.StatusAddr, statusapi.NewRouter(statusapi.Deps{
			Name:   cfg.Name,
			Stats:  srv,
			Checks: checks,
			Log:    log,
		}))
		shutdownMgr.Register("status-api", func(ctx context.Context) error {
			return httpSrv.Shutdown(ctx)
		})
		go func() {
			log.Info("status API listening", "addr", cfg.StatusAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("status API failed", "error", err.Error())
			}
		}()
	}

	log.Info("metatile backend started",
		"name", cfg.Name,
		"tile_dir", store.Root(),
		"size", cfg.Size,
		"workers", cfg.Workers,
	)

	runCtx, stop := shutdownMgr.Listen(ctx)
	err = srv.Run(runCtx)
	stop()
	shutdownMgr.Shutdown()

	if err != nil {
		log.LogFatal("protocol server failed", err)
	}
	log.Info("metatile backend stopped")
}
