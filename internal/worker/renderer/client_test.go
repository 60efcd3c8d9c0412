package renderer

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/ports"
)

func tileServer(t *testing.T, got *Spec) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/render", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(got)) {
			return
		}

		img := image.NewRGBA(image.Rect(0, 0, got.Width, got.Height))
		img.Set(0, 0, color.RGBA{R: 200, A: 255})
		w.Header().Set("Content-Type", "image/png")
		assert.NoError(t, png.Encode(w, img))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRenderTile(t *testing.T) {
	var got Spec
	srv := tileServer(t, &got)

	c := NewHTTPClient(srv.URL+"/", time.Second, nil)
	img, err := c.RenderTile(context.Background(), ports.TileRequest{
		Layer:      "osm",
		Width:      4,
		Height:     4,
		Projection: "EPSG:3857",
		Tile:       maptile.New(1, 0, 1),
	})
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())

	require.Equal(t, "osm", got.Layer)
	require.Equal(t, uint32(1), got.X)
	require.Equal(t, uint32(0), got.Y)
	require.Equal(t, uint32(1), got.Z)
	// Tile 1/1/0 is the north-east quadrant.
	require.InDelta(t, 0, got.Bounds[0], 1e-9)
	require.InDelta(t, 180, got.Bounds[2], 1e-9)
	require.Greater(t, got.Bounds[3], got.Bounds[1])
	require.Greater(t, got.Bounds[1], -1e-9)
}

func TestRenderTileLayerOverride(t *testing.T) {
	var got Spec
	srv := tileServer(t, &got)

	c := NewHTTPClient("", time.Second, map[string]string{"topo": srv.URL})
	_, err := c.RenderTile(context.Background(), ports.TileRequest{Layer: "topo", Width: 1, Height: 1})
	require.NoError(t, err)
	require.Equal(t, "topo", got.Layer)

	_, err = c.RenderTile(context.Background(), ports.TileRequest{Layer: "osm", Width: 1, Height: 1})
	require.True(t, errors.IsConfiguration(err), "got %v", err)
}

func TestRenderTileFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "style not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, time.Second, nil)
	_, err := c.RenderTile(context.Background(), ports.TileRequest{Layer: "osm", Width: 1, Height: 1})
	require.Error(t, err)
	require.True(t, errors.IsCode(err, errors.CodeRender))
	require.Contains(t, err.Error(), "style not found")

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not an image"))
	}))
	t.Cleanup(garbage.Close)

	_, err = NewHTTPClient(garbage.URL, time.Second, nil).
		RenderTile(context.Background(), ports.TileRequest{Layer: "osm", Width: 1, Height: 1})
	require.True(t, errors.IsCode(err, errors.CodeRender), "got %v", err)
}

func TestRenderTileTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewHTTPClient(srv.URL, 50*time.Millisecond, nil)
	_, err := c.RenderTile(context.Background(), ports.TileRequest{Layer: "osm", Width: 1, Height: 1})
	require.True(t, errors.IsCode(err, errors.CodeUnavailable), "got %v", err)
}
