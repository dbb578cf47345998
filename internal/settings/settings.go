// Package settings loads the settings cascade that backs the bundle's
// settings source.
//
// A cascade is an ordered list of CUE files, typically global, then
// organization, then user. Each file is evaluated on its own (so it may use
// CUE references, defaults and constraints), must be concrete, and is then
// merged over the files before it: objects merge key by key and any other
// value from a later file replaces the earlier one. An optional CUE schema is
// unified with the final result.
package settings

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// Settings is the final, merged settings value.
type Settings map[string]any

// Get returns the value at key, or nil.
func (s Settings) Get(key string) any {
	if s == nil {
		return nil
	}
	return s[key]
}

// Option configures Load.
type Option func(*loadConfig)

type loadConfig struct {
	schemaPath string
}

// WithSchema validates the merged cascade against the CUE file at path.
func WithSchema(path string) Option {
	return func(c *loadConfig) {
		c.schemaPath = path
	}
}

// LoadError reports a settings file that could not be evaluated.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("settings %s: %s", e.Path, errors.Details(e.Err, nil))
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load evaluates the cascade in order and returns the merged settings.
// An empty cascade yields empty, non-nil settings.
func Load(paths []string, opts ...Option) (Settings, error) {
	var cfg loadConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := cuecontext.New()
	merged := Settings{}

	for _, path := range paths {
		layer, err := loadFile(ctx, path)
		if err != nil {
			return nil, err
		}
		merged = Settings(mergeMaps(merged, layer))
	}

	if cfg.schemaPath != "" {
		if err := validateSchema(ctx, cfg.schemaPath, merged); err != nil {
			return nil, err
		}
	}

	return merged, nil
}

// loadFile compiles a single CUE file and decodes it into a map.
func loadFile(ctx *cue.Context, path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var out map[string]any
	if err := v.Decode(&out); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// validateSchema unifies the merged settings with the schema file.
func validateSchema(ctx *cue.Context, schemaPath string, merged Settings) error {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read settings schema: %w", err)
	}

	schema := ctx.CompileBytes(data, cue.Filename(schemaPath))
	if err := schema.Err(); err != nil {
		return &LoadError{Path: schemaPath, Err: err}
	}

	value := ctx.Encode(map[string]any(merged))
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode merged settings: %w", err)
	}

	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return &LoadError{Path: schemaPath, Err: err}
	}
	return nil
}

// mergeMaps returns base overlaid with layer. Nested objects merge
// recursively; every other value in layer replaces the one in base.
// Neither input is modified.
func mergeMaps(base, layer map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(layer))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range layer {
		baseObj, baseIsObj := out[k].(map[string]any)
		layerObj, layerIsObj := v.(map[string]any)
		if baseIsObj && layerIsObj {
			out[k] = mergeMaps(baseObj, layerObj)
			continue
		}
		out[k] = v
	}
	return out
}
