package worker

import (
	"fmt"
	"time"

	"metatiled/internal/metatile"
	"metatiled/internal/pkg/errors"
	"metatiled/internal/storage"
	"metatiled/internal/worker/processor"
	"metatiled/internal/worker/renderer"
	"metatiled/internal/worker/util"
)

// DefaultAliveTimeout is the liveness interval used when none is configured.
const DefaultAliveTimeout = 10 * time.Second

// Config is everything the backend process reads from its environment.
type Config struct {
	Name string
	// SocketFD is an inherited datagram socket, or -1 to bind Port instead.
	SocketFD int
	Port     int
	// PipeFD is the inherited heartbeat pipe, or -1 when there is none.
	PipeFD       int
	AliveTimeout time.Duration
	MapConfig    string
	Debug        bool

	TileDir       string
	Size          int
	Workers       int
	RendererURL   string
	RenderTimeout time.Duration
	// SideEffectTimeout bounds each mirror upload, journal write and
	// completion notice.
	SideEffectTimeout time.Duration

	StatusAddr   string
	DatabaseURL  string
	RedisAddr    string
	RedisChannel string
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	cfg := Config{
		Name:         util.Env("METATILE_BACKEND_NAME", "metatile"),
		MapConfig:    util.Env("METATILE_BACKEND_MAP_CONFIG", ""),
		Debug:        util.BoolEnv("METATILE_BACKEND_DEBUG", false),
		TileDir:      util.Env("METATILE_TILE_DIR", storage.DefaultTileDir),
		RendererURL:  util.Env("RENDERER_HTTP_BASEURL", ""),
		StatusAddr:   util.Env("STATUS_ADDR", ""),
		DatabaseURL:  util.Env("DATABASE_URL", ""),
		RedisAddr:    util.Env("REDIS_ADDR", ""),
		RedisChannel: util.Env("REDIS_CHANNEL", ""),
	}

	var bad []error
	intVar := func(dst *int, key string, def int) {
		v, ok := util.IntEnv(key, def)
		if !ok {
			bad = append(bad, fmt.Errorf("%s: not an integer", key))
		}
		*dst = v
	}
	durationVar := func(dst *time.Duration, key string, def time.Duration) {
		v, ok := util.DurationEnv(key, def)
		if !ok || v <= 0 {
			bad = append(bad, fmt.Errorf("%s: not a positive duration", key))
		}
		*dst = v
	}

	intVar(&cfg.SocketFD, "METATILE_BACKEND_SOCKET_FILENO", -1)
	intVar(&cfg.Port, "METATILE_BACKEND_PORT", 0)
	intVar(&cfg.PipeFD, "METATILE_BACKEND_PIPE_FILENO", -1)
	intVar(&cfg.Size, "METATILE_SIZE", metatile.DefaultSize)
	intVar(&cfg.Workers, "METATILE_WORKERS", metatile.DefaultWorkers)
	durationVar(&cfg.AliveTimeout, "METATILE_BACKEND_ALIVE_TIMEOUT", DefaultAliveTimeout)
	durationVar(&cfg.RenderTimeout, "RENDER_TIMEOUT", renderer.DefaultTimeout)
	durationVar(&cfg.SideEffectTimeout, "SIDE_EFFECT_TIMEOUT", processor.DefaultSideEffectTimeout)

	if err := errors.Join(bad...); err != nil {
		return cfg, errors.WrapWithCode(err, errors.CodeConfiguration, "worker.config", "invalid environment")
	}
	return cfg, cfg.Validate()
}

// Validate checks that the configuration describes a runnable backend.
func (c Config) Validate() error {
	switch {
	case c.SocketFD < 0 && c.Port <= 0:
		return errors.Configuration("one of METATILE_BACKEND_SOCKET_FILENO or METATILE_BACKEND_PORT is required")
	case c.Port > 65535:
		return errors.Configurationf("port out of range: %d", c.Port)
	case c.MapConfig == "":
		return errors.Configuration("METATILE_BACKEND_MAP_CONFIG is required")
	case c.AliveTimeout <= 0:
		return errors.Configuration("liveness interval must be positive")
	case c.Size < 1:
		return errors.Configurationf("invalid metatile size %d", c.Size)
	case c.Workers < 1:
		return errors.Configurationf("invalid worker count %d", c.Workers)
	}
	return nil
}
