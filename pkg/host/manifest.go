package host

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/bmi/pkg/bmi"
)

// ManifestFile is the file name ScanDirectory and Watch look for.
const ManifestFile = "manifest.yaml"

// Manifest describes a registered model.
type Manifest struct {
	// Name is the registry name of the model.
	Name string `yaml:"name" json:"name"`

	// Version is a semantic version, with or without a leading "v".
	Version string `yaml:"version" json:"version"`

	// Description is a one-line summary.
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Author is the model author.
	Author string `yaml:"author,omitempty" json:"author,omitempty"`

	// License is the SPDX license of the model.
	License string `yaml:"license,omitempty" json:"license,omitempty"`

	// Capabilities are the optional operations the model claims to support.
	Capabilities []bmi.Capability `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`

	// Entrypoint is the WebAssembly module, relative to the manifest file.
	// Empty for models compiled into the binary.
	Entrypoint string `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`

	// Checksum is the hex SHA-256 of the WebAssembly module.
	Checksum string `yaml:"checksum,omitempty" json:"checksum,omitempty"`

	// Path is the file the manifest was loaded from.
	Path string `yaml:"-" json:"path,omitempty"`

	// WasmPath is the resolved path of the WebAssembly module.
	WasmPath string `yaml:"-" json:"wasm_path,omitempty"`

	// Verified indicates the module matched Checksum.
	Verified bool `yaml:"-" json:"verified,omitempty"`
}

// Key returns the registry key name@version.
func (m *Manifest) Key() string {
	return buildModelKey(m.Name, m.Version)
}

// Validate checks the fields every manifest needs.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if m.Version == "" {
		return fmt.Errorf("model version is required")
	}
	if !semver.IsValid(canonicalVersion(m.Version)) {
		return fmt.Errorf("model version %q is not a semantic version", m.Version)
	}
	for _, c := range m.Capabilities {
		switch c {
		case bmi.CapabilityCheckpoint, bmi.CapabilityFractionalUpdate:
		default:
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	return nil
}

// VerifyChecksum verifies the WebAssembly module against the manifest.
func (m *Manifest) VerifyChecksum(wasmModule []byte) error {
	if m.Checksum == "" {
		return fmt.Errorf("no checksum in manifest")
	}

	hash := sha256.Sum256(wasmModule)
	computed := hex.EncodeToString(hash[:])
	if computed != m.Checksum {
		return fmt.Errorf("WASM module checksum mismatch: expected %s, got %s", m.Checksum, computed)
	}

	m.Verified = true
	return nil
}

// ManifestLoader loads and parses model manifests.
type ManifestLoader struct {
	// BaseDir resolves entrypoints of manifests loaded from bytes.
	BaseDir string
}

// NewManifestLoader creates a new manifest loader.
func NewManifestLoader(baseDir string) *ManifestLoader {
	return &ManifestLoader{BaseDir: baseDir}
}

// LoadFromFile loads a WebAssembly model manifest from a YAML file.
func (l *ManifestLoader) LoadFromFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	manifest, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	manifest.Path = path

	if manifest.Entrypoint == "" {
		return nil, fmt.Errorf("invalid manifest: entrypoint is required")
	}
	if filepath.IsAbs(manifest.Entrypoint) {
		manifest.WasmPath = manifest.Entrypoint
	} else {
		manifest.WasmPath = filepath.Join(filepath.Dir(path), manifest.Entrypoint)
	}
	if _, err := os.Stat(manifest.WasmPath); err != nil {
		return nil, fmt.Errorf("WASM module not found at %s: %w", manifest.WasmPath, err)
	}

	return manifest, nil
}

// LoadFromBytes parses a manifest and verifies wasmModule against its
// checksum when one is given.
func (l *ManifestLoader) LoadFromBytes(data, wasmModule []byte) (*Manifest, error) {
	manifest, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	if manifest.Entrypoint != "" {
		manifest.WasmPath = filepath.Join(l.BaseDir, manifest.Entrypoint)
	}
	if manifest.Checksum != "" {
		if err := manifest.VerifyChecksum(wasmModule); err != nil {
			return nil, err
		}
	}
	return manifest, nil
}

func (l *ManifestLoader) parse(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &manifest, nil
}
