package protocol_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/protocol"
)

// echoBackend answers every datagram with result=ok and the request id.
func echoBackend(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = pc.Close() })

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			req := protocol.Decode(buf[:n])
			resp := protocol.RenderResponse{Type: req["type"], ID: req["id"], OK: true, RenderTime: 2}
			_, _ = pc.WriteTo(protocol.Encode(resp.Fields()), addr)
		}
	}()
	return pc.LocalAddr().String()
}

func TestExchange(t *testing.T) {
	addr := echoBackend(t)
	req := protocol.RenderRequest{ID: "c1", Map: "osm", Z: 3}

	got, err := protocol.Exchange(context.Background(), addr, req.Fields(), time.Second)
	if err != nil {
		t.Fatalf("Exchange failed: %v", err)
	}
	want := map[string]string{
		"type":        "metatile_render_request",
		"id":          "c1",
		"result":      "ok",
		"render_time": "2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestExchangeTimeout(t *testing.T) {
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer silent.Close()

	start := time.Now()
	_, err = protocol.Exchange(context.Background(), silent.LocalAddr().String(), map[string]string{"type": "x"}, 50*time.Millisecond)
	if !errors.IsCode(err, errors.CodeTimeout) {
		t.Fatalf("Exchange() error = %v, want timeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("timeout took %v", time.Since(start))
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	if _, err := protocol.Exchange(ctx, silent.LocalAddr().String(), map[string]string{"type": "x"}, 0); err == nil {
		t.Fatal("Exchange() returned no error after cancel")
	}
}
