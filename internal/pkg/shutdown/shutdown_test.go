package shutdown

import (
	"bytes"
	"context"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"metatiled/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	var buf bytes.Buffer
	return logger.New(logger.Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})
}

func TestNewManager(t *testing.T) {
	log := newTestLogger()

	t.Run("with default timeout", func(t *testing.T) {
		mgr := NewManager(log, 0)
		if mgr.timeout != 30*time.Second {
			t.Errorf("expected default timeout 30s, got %v", mgr.timeout)
		}
	})

	t.Run("with custom timeout", func(t *testing.T) {
		mgr := NewManager(log, 10*time.Second)
		if mgr.timeout != 10*time.Second {
			t.Errorf("expected timeout 10s, got %v", mgr.timeout)
		}
	})
}

func TestRegister(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	mgr.Register("socket", func(ctx context.Context) error {
		return nil
	})

	if len(mgr.handlers) != 1 {
		t.Errorf("expected 1 handler, got %d", len(mgr.handlers))
	}
	if mgr.handlers[0].Name != "socket" {
		t.Errorf("expected handler name 'socket', got %s", mgr.handlers[0].Name)
	}
}

func TestListen(t *testing.T) {
	t.Run("signal cancels context", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), time.Second)
		ctx, stop := mgr.Listen(context.Background())
		defer stop()

		select {
		case <-ctx.Done():
			t.Fatal("expected context to not be canceled initially")
		default:
		}

		mgr.sigCh <- syscall.SIGHUP

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("expected context to be canceled after SIGHUP")
		}
	})

	t.Run("parent cancellation propagates", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), time.Second)
		parent, cancel := context.WithCancel(context.Background())
		ctx, stop := mgr.Listen(parent)
		defer stop()

		cancel()

		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("expected context to be canceled with parent")
		}
	})
}

func TestShutdown(t *testing.T) {
	t.Run("runs every handler", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), 5*time.Second)

		var counter atomic.Int32
		for i := 0; i < 3; i++ {
			mgr.Register("handler", func(ctx context.Context) error {
				counter.Add(1)
				return nil
			})
		}
		var simple atomic.Bool
		mgr.RegisterSimple("simple", func() { simple.Store(true) })

		mgr.Shutdown()

		if counter.Load() != 3 {
			t.Errorf("expected 3 handlers called, got %d", counter.Load())
		}
		if !simple.Load() {
			t.Error("expected simple handler to be called")
		}
	})

	t.Run("closes done channel once", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), 5*time.Second)
		mgr.Shutdown()
		mgr.Shutdown()

		select {
		case <-mgr.Done():
		case <-time.After(time.Second):
			t.Error("expected done channel to be closed")
		}
	})

	t.Run("handles handler errors gracefully", func(t *testing.T) {
		mgr := NewManager(newTestLogger(), 5*time.Second)
		mgr.Register("failing", func(ctx context.Context) error {
			return context.DeadlineExceeded
		})

		mgr.Shutdown()
	})
}

func TestShutdownTimeout(t *testing.T) {
	mgr := NewManager(newTestLogger(), 100*time.Millisecond)

	mgr.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
		}
		return nil
	})

	start := time.Now()
	mgr.Shutdown()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("shutdown took too long: %v", elapsed)
	}
}
