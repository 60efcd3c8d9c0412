// Package renderer talks to the map rendering service over HTTP.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/ports"
)

// DefaultTimeout bounds a single tile render.
const DefaultTimeout = 60 * time.Second

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 512

// Spec is the JSON body posted to the renderer for one tile.
type Spec struct {
	Layer      string     `json:"layer"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	Projection string     `json:"projection"`
	X          uint32     `json:"x"`
	Y          uint32     `json:"y"`
	Z          uint32     `json:"z"`
	Bounds     [4]float64 `json:"bounds"`
}

// HTTPClient renders tiles by POSTing a Spec to <baseURL>/render and decoding
// the image in the response body.
type HTTPClient struct {
	baseURL string
	layers  map[string]string
	client  *http.Client
}

var _ ports.Renderer = (*HTTPClient)(nil)

// NewHTTPClient returns a client for baseURL. layerURLs overrides the base URL
// for individual layers; timeout <= 0 selects DefaultTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration, layerURLs map[string]string) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		layers:  layerURLs,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) RenderTile(ctx context.Context, tr ports.TileRequest) (image.Image, error) {
	op := fmt.Sprintf("renderer.render %s %d/%d/%d", tr.Layer, tr.Tile.Z, tr.Tile.X, tr.Tile.Y)

	base := c.baseURL
	if u := c.layers[tr.Layer]; u != "" {
		base = strings.TrimRight(u, "/")
	}
	if base == "" {
		return nil, errors.Configurationf("no renderer url for layer %s", tr.Layer)
	}

	b := tr.Tile.Bound()
	body, err := json.Marshal(Spec{
		Layer:      tr.Layer,
		Width:      tr.Width,
		Height:     tr.Height,
		Projection: tr.Projection,
		X:          tr.Tile.X,
		Y:          tr.Tile.Y,
		Z:          uint32(tr.Tile.Z),
		Bounds:     [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
	})
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInternal, op, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, op, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png, image/jpeg")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, op, "request failed")
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, errors.Newf(errors.CodeRender, "renderer http %d: %s", res.StatusCode, strings.TrimSpace(string(msg))).
			WithField("status", res.StatusCode)
	}

	img, _, err := image.Decode(res.Body)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeRender, op, "decode image")
	}
	return img, nil
}
