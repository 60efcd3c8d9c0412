// Package layers loads the map layer configuration that tells the backend
// how each named layer is rendered.
package layers

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"metatiled/internal/pkg/errors"
	"metatiled/internal/tileformat"
)

// Defaults applied to layers that leave a field unset.
const (
	DefaultTileSize   = 256
	DefaultProjection = "EPSG:3857"
)

// Layer is the render configuration of one map layer.
type Layer struct {
	Name        string `mapstructure:"-"`
	TileSize    int    `mapstructure:"tile_size"`
	Projection  string `mapstructure:"projection"`
	Extension   string `mapstructure:"extension"`
	RendererURL string `mapstructure:"renderer_url"`
}

// Format returns the tile format selected by the layer's extension.
func (l Layer) Format() (tileformat.Format, error) {
	return tileformat.ForExtension(l.Extension)
}

type fileConfig struct {
	Layers map[string]Layer `mapstructure:"layers"`
}

// Registry resolves layers by name.
type Registry struct {
	layers map[string]Layer
}

// Load reads a layer configuration file. The format follows the file
// extension (yaml, toml, json). Layer names are case-insensitive.
func Load(path string) (*Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("METATILE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "layers.load", "failed to read map config "+path)
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "layers.load", "failed to unmarshal map config "+path)
	}

	ls := make([]Layer, 0, len(fc.Layers))
	for name, l := range fc.Layers {
		l.Name = name
		if l.RendererURL == "" {
			l.RendererURL = v.GetString("renderer_url")
		}
		ls = append(ls, l)
	}
	return NewRegistry(ls...)
}

// NewRegistry builds a registry from explicit layers, filling defaults and
// rejecting unusable entries.
func NewRegistry(ls ...Layer) (*Registry, error) {
	r := &Registry{layers: make(map[string]Layer, len(ls))}
	for _, l := range ls {
		l.Name = strings.ToLower(strings.TrimSpace(l.Name))
		if l.Name == "" {
			return nil, errors.Configuration("layer without a name")
		}
		if strings.ContainsAny(l.Name, `/\`) || l.Name == "." || l.Name == ".." {
			return nil, errors.Configurationf("invalid layer name %q", l.Name)
		}
		if _, dup := r.layers[l.Name]; dup {
			return nil, errors.Configurationf("duplicate layer %q", l.Name)
		}
		if l.TileSize == 0 {
			l.TileSize = DefaultTileSize
		}
		if l.TileSize < 0 {
			return nil, errors.Configurationf("layer %q: invalid tile_size %d", l.Name, l.TileSize)
		}
		if l.Projection == "" {
			l.Projection = DefaultProjection
		}
		f, err := l.Format()
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeConfiguration, "layers.register", fmt.Sprintf("layer %q", l.Name))
		}
		l.Extension = f.Extension
		r.layers[l.Name] = l
	}
	return r, nil
}

// Layer looks up a layer by name.
func (r *Registry) Layer(name string) (Layer, bool) {
	l, ok := r.layers[strings.ToLower(name)]
	return l, ok
}

// RequireRenderer checks that every layer can reach a renderer, either
// through its own renderer_url or through fallback.
func (r *Registry) RequireRenderer(fallback string) error {
	if strings.TrimSpace(fallback) != "" {
		return nil
	}
	var missing []string
	for _, name := range r.Names() {
		if r.layers[name].RendererURL == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Configurationf("no renderer url for layers %s", strings.Join(missing, ", ")).
			WithField("layers", missing)
	}
	return nil
}

// Names returns the configured layer names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.layers))
	for name := range r.layers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
