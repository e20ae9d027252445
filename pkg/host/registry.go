package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/mod/semver"
)

// registration is one model known to the registry.
type registration struct {
	manifest *Manifest
	factory  Factory
}

// RegistryConfig contains configuration for a Registry.
type RegistryConfig struct {
	// BaseDir resolves relative manifest entrypoints.
	BaseDir string

	// Logger receives registry logs and is handed to every Instance.
	Logger *zerolog.Logger

	// WASM configures the runtime of WebAssembly models.
	WASM *WASMConfig

	// Instance is the template for every Instance the registry creates.
	// Its Logger and Version are set per model.
	Instance InstanceConfig
}

// Registry maps name@version to model factories. It is safe for concurrent
// use; the Instances it creates are not shared and not synchronized.
type Registry struct {
	// mu protects the registry state.
	mu sync.RWMutex

	// models maps model key (name@version) to its registration.
	models map[string]*registration

	// loader is the manifest loader.
	loader *ManifestLoader

	wasmConfig *WASMConfig
	instance   InstanceConfig
	logger     zerolog.Logger
}

// NewRegistry creates a new model registry.
func NewRegistry(cfg *RegistryConfig) *Registry {
	if cfg == nil {
		cfg = &RegistryConfig{}
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Registry{
		models:     make(map[string]*registration),
		loader:     NewManifestLoader(cfg.BaseDir),
		wasmConfig: cfg.WASM,
		instance:   cfg.Instance,
		logger:     logger.With().Str("component", "registry").Logger(),
	}
}

// Register adds a model under manifest.Name@manifest.Version.
func (r *Registry) Register(manifest *Manifest, factory Factory) error {
	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if factory == nil {
		return fmt.Errorf("model %s: factory is required", manifest.Key())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := manifest.Key()
	if _, exists := r.models[key]; exists {
		return fmt.Errorf("model %s already registered", key)
	}
	r.models[key] = &registration{manifest: manifest, factory: factory}
	r.logger.Debug().Str("model", key).Msg("Registered model")
	return nil
}

// RegisterFromPath registers a WebAssembly model from its manifest file.
func (r *Registry) RegisterFromPath(ctx context.Context, manifestPath string) error {
	manifest, wasmModule, err := r.loadWASMManifest(manifestPath)
	if err != nil {
		return err
	}
	return r.Register(manifest, r.wasmFactory(wasmModule))
}

// replaceFromPath registers or re-registers a WebAssembly model.
func (r *Registry) replaceFromPath(manifestPath string) (string, error) {
	manifest, wasmModule, err := r.loadWASMManifest(manifestPath)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, reg := range r.models {
		if reg.manifest.Path == manifestPath {
			delete(r.models, key)
		}
	}
	r.models[manifest.Key()] = &registration{manifest: manifest, factory: r.wasmFactory(wasmModule)}
	return manifest.Key(), nil
}

func (r *Registry) loadWASMManifest(manifestPath string) (*Manifest, []byte, error) {
	manifest, err := r.loader.LoadFromFile(manifestPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	wasmModule, err := os.ReadFile(manifest.WasmPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read WASM module: %w", err)
	}

	if manifest.Checksum != "" {
		if err := manifest.VerifyChecksum(wasmModule); err != nil {
			return nil, nil, fmt.Errorf("checksum verification failed: %w", err)
		}
	}
	return manifest, wasmModule, nil
}

func (r *Registry) wasmFactory(wasmModule []byte) Factory {
	return func(ctx context.Context) (Kernel, error) {
		return NewWASMKernel(ctx, wasmModule, r.wasmConfig)
	}
}

// New creates a fresh Instance of the model matching name and version.
// Version may be exact, "latest" or empty, "~x.y" or "^x".
func (r *Registry) New(ctx context.Context, name, version string) (*Instance, error) {
	r.mu.RLock()
	key, err := r.resolveVersion(name, version)
	var reg *registration
	if err == nil {
		reg = r.models[key]
	}
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	kernel, err := reg.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create model %s: %w", key, err)
	}

	cfg := r.instance
	cfg.Version = reg.manifest.Version
	if cfg.Logger == nil {
		cfg.Logger = &r.logger
	}
	inst, err := NewInstance(kernel, &cfg)
	if err != nil {
		_ = kernel.Release(ctx)
		return nil, fmt.Errorf("failed to create model %s: %w", key, err)
	}
	return inst, nil
}

// Resolve returns the manifest of the model matching name and version.
func (r *Registry) Resolve(name, version string) (*Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, err := r.resolveVersion(name, version)
	if err != nil {
		return nil, err
	}
	manifest := *r.models[key].manifest
	return &manifest, nil
}

// List returns the manifests of all registered models ordered by name and
// then version.
func (r *Registry) List() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Manifest, 0, len(r.models))
	for _, reg := range r.models {
		out = append(out, *reg.manifest)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Name != out[b].Name {
			return out[a].Name < out[b].Name
		}
		return semver.Compare(canonicalVersion(out[a].Version), canonicalVersion(out[b].Version)) < 0
	})
	return out
}

// Unregister removes a model from the registry.
func (r *Registry) Unregister(name, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := buildModelKey(name, version)
	if _, exists := r.models[key]; !exists {
		return fmt.Errorf("model %s not found", key)
	}
	delete(r.models, key)
	return nil
}

// unregisterPath removes every model loaded from manifestPath.
func (r *Registry) unregisterPath(manifestPath string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for key, reg := range r.models {
		if reg.manifest.Path == manifestPath {
			delete(r.models, key)
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	return removed
}

// ScanDirectory registers every <dir>/<model>/manifest.yaml. Manifests
// that fail to load are logged and skipped.
func (r *Registry) ScanDirectory(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(dir, entry.Name(), ManifestFile)
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		if err := r.RegisterFromPath(ctx, manifestPath); err != nil {
			r.logger.Warn().
				Err(err).
				Str("manifest", manifestPath).
				Msg("Failed to register model")
		}
	}

	return nil
}

// resolveVersion resolves a version constraint to a registry key.
// Supports:
// - Exact version: "1.0.0"
// - Latest: "latest" or ""
// - Tilde range: "~1.0.0" (matches 1.0.x)
// - Caret range: "^1.0.0" (matches 1.x.x)
func (r *Registry) resolveVersion(name, version string) (string, error) {
	switch {
	case version == "" || version == "latest":
		return r.findBest(name, "", func(string) bool { return true })
	case strings.HasPrefix(version, "~"):
		want := canonicalVersion(version[1:])
		if !semver.IsValid(want) {
			return "", fmt.Errorf("invalid version format: %s", version)
		}
		return r.findBest(name, version, func(v string) bool {
			return semver.MajorMinor(v) == semver.MajorMinor(want) && semver.Compare(v, want) >= 0
		})
	case strings.HasPrefix(version, "^"):
		want := canonicalVersion(version[1:])
		if !semver.IsValid(want) {
			return "", fmt.Errorf("invalid version format: %s", version)
		}
		return r.findBest(name, version, func(v string) bool {
			return semver.Major(v) == semver.Major(want) && semver.Compare(v, want) >= 0
		})
	}

	key := buildModelKey(name, version)
	if _, exists := r.models[key]; !exists {
		return "", fmt.Errorf("model %s not found", key)
	}
	return key, nil
}

// findBest returns the highest registered version of name accepted by match.
func (r *Registry) findBest(name, constraint string, match func(canonical string) bool) (string, error) {
	var best, bestVersion string
	for key, reg := range r.models {
		if reg.manifest.Name != name {
			continue
		}
		v := canonicalVersion(reg.manifest.Version)
		if !match(v) {
			continue
		}
		if best == "" || semver.Compare(v, bestVersion) > 0 {
			best, bestVersion = key, v
		}
	}

	if best == "" {
		if constraint == "" {
			return "", fmt.Errorf("model %s not found", name)
		}
		return "", fmt.Errorf("no version matching %s found for model %s", constraint, name)
	}
	return best, nil
}

// buildModelKey builds a unique key for a model.
func buildModelKey(name, version string) string {
	return name + "@" + version
}

// canonicalVersion adds the "v" prefix golang.org/x/mod/semver expects.
func canonicalVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
