package models

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

//go:embed registry.json
var embeddedRegistry []byte

const (
	ManifestFile = "manifest.json"
	checksumFile = ".checksum"
)

// nerFiles are required when a bundle ships a token classification model.
var nerFiles = []string{"model.onnx", "labels.json", "tokenizer.json"}

var ErrUnknownModel = errors.New("unknown model")

type Registry struct {
	Version string      `json:"version"`
	Models  []ModelSpec `json:"models"`
}

type ModelSpec struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Version     string `json:"version"`
	Language    string `json:"language"`
	Region      string `json:"region,omitempty"`
	// URL is empty for rules-only bundles, which are installed from the
	// registry entry itself.
	URL         string   `json:"url,omitempty"`
	Checksum    string   `json:"checksum"`
	SizeBytes   int64    `json:"size_bytes"`
	EntityTypes []string `json:"entity_types"`
	Description string   `json:"description"`
	License     string   `json:"license"`
	Recommended bool     `json:"recommended"`
}

// Manifest describes an installed entity model bundle.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Language    string   `json:"language"`
	Region      string   `json:"region"`
	EntityTypes []string `json:"entity_types"`
	NER         bool     `json:"ner"`
}

func LoadEmbeddedRegistry() (Registry, error) {
	return ParseRegistry(embeddedRegistry)
}

// LoadRegistry reads a registry file, falling back to the embedded one when
// path is empty.
func LoadRegistry(path string) (Registry, error) {
	if path == "" {
		return LoadEmbeddedRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, err
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (Registry, error) {
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("parse model registry: %w", err)
	}
	sort.Slice(reg.Models, func(i, j int) bool { return reg.Models[i].Name < reg.Models[j].Name })
	return reg, nil
}

func (r Registry) Find(name string) (ModelSpec, bool) {
	for _, m := range r.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelSpec{}, false
}

// ModelName is the registry name of the entity model for a BCP 47 tag;
// only the base language counts, so "en-GB" and "en" share entity_en.
func ModelName(lang string) (string, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", fmt.Errorf("language %q: %w", lang, err)
	}
	base, _ := tag.Base()
	return "entity_" + base.String(), nil
}

func (r Registry) ForLanguage(lang string) (ModelSpec, error) {
	name, err := ModelName(lang)
	if err != nil {
		return ModelSpec{}, err
	}
	m, ok := r.Find(name)
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: no entity model for language %q", ErrUnknownModel, lang)
	}
	return m, nil
}

func DefaultModelsRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".datadetector", "models"), nil
}

func ModelInstallPath(root string, name string) string {
	return filepath.Join(root, name)
}

// IsInstalled reports whether a valid copy of model is under root. A copy
// whose recorded checksum differs from the registry is stale and does not
// count; copies without a recorded checksum were placed by hand and do.
func IsInstalled(root string, model ModelSpec) bool {
	if ValidateModelDir(ModelInstallPath(root, model.Name)) != nil {
		return false
	}
	return !IsStale(root, model)
}

// IsStale reports whether the installed copy was built from a different
// registry checksum than model carries.
func IsStale(root string, model ModelSpec) bool {
	recorded, err := InstalledChecksum(root, model.Name)
	if err != nil {
		return false
	}
	return recorded != model.Checksum
}

func ReadManifest(dir string) (Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	if m.Name == "" || m.Language == "" {
		return Manifest{}, fmt.Errorf("%s: name and language are required", ManifestFile)
	}
	return m, nil
}

// InstalledChecksum is the archive checksum recorded at install time.
func InstalledChecksum(root, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(ModelInstallPath(root, name), checksumFile))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func Remove(root, name string) error {
	loc := ModelInstallPath(root, name)
	if _, err := os.Stat(loc); err != nil {
		return err
	}
	return os.RemoveAll(loc)
}
