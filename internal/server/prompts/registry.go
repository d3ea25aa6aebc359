// Package prompts implements the prompt-profile registry: note categories
// mapped to rendered system/user prompts plus an optional output schema.
// Profiles live in a YAML file and are reloaded only through an explicit
// Reload call; there is no ambient file watching.
package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// Rendered is the prompt pair handed to the Vision-AI collaborator.
type Rendered struct {
	System string
	User   string
	Schema *jsonschema.Schema
}

// Registry resolves a note category to a rendered prompt.
type Registry interface {
	Resolve(category string, tags []string) (*Rendered, error)
	Reload() error
}

// profileSpec is the on-disk YAML shape of one profile.
type profileSpec struct {
	DisplayName  string         `yaml:"display_name"`
	SystemPrompt string         `yaml:"system_prompt"`
	UserPrompt   string         `yaml:"user_prompt"`
	Schema       map[string]any `yaml:"schema"`
}

type profile struct {
	key    string
	spec   profileSpec
	schema *jsonschema.Schema
}

// FileRegistry loads profiles from a YAML file, falling back to built-in
// defaults for unknown categories (and entirely when no file is configured).
type FileRegistry struct {
	path string

	mu       sync.RWMutex
	profiles map[string]*profile
	fallback *profile
}

const defaultKey = "学习笔记"

// NewFileRegistry builds the registry and performs the initial load.
// An empty path means built-in defaults only.
func NewFileRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the profile file and atomically swaps the registry
// contents. Callers trigger it explicitly (admin endpoint); a failed reload
// leaves the previous profiles in place.
func (r *FileRegistry) Reload() error {
	specs := defaultSpecs()

	if r.path != "" {
		raw, err := os.ReadFile(r.path)
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("read profile file: %w", err)
			}
		} else {
			var fromFile map[string]profileSpec
			if err := yaml.Unmarshal(raw, &fromFile); err != nil {
				return fmt.Errorf("parse profile file: %w", err)
			}
			for key, spec := range fromFile {
				specs[normalize(key)] = spec
			}
		}
	}

	profiles := make(map[string]*profile, len(specs))
	for key, spec := range specs {
		p, err := buildProfile(key, spec)
		if err != nil {
			return fmt.Errorf("profile %q: %w", key, err)
		}
		profiles[key] = p
	}

	fallback, ok := profiles[normalize(defaultKey)]
	if !ok {
		return fmt.Errorf("default profile %q missing", defaultKey)
	}

	r.mu.Lock()
	r.profiles = profiles
	r.fallback = fallback
	r.mu.Unlock()
	return nil
}

// Resolve returns the rendered prompt for the category; unknown categories
// fall back to the default profile rendered with the requested category name.
func (r *FileRegistry) Resolve(category string, tags []string) (*Rendered, error) {
	r.mu.RLock()
	p, ok := r.profiles[normalize(category)]
	if !ok {
		p = r.fallback
	}
	r.mu.RUnlock()

	if p == nil {
		return nil, fmt.Errorf("prompt registry not loaded")
	}

	replacer := strings.NewReplacer(
		"{category}", category,
		"{tags}", strings.Join(tags, ", "),
	)
	return &Rendered{
		System: p.spec.SystemPrompt,
		User:   replacer.Replace(p.spec.UserPrompt),
		Schema: p.schema,
	}, nil
}

func buildProfile(key string, spec profileSpec) (*profile, error) {
	p := &profile{key: key, spec: spec}
	if len(spec.Schema) == 0 {
		return p, nil
	}

	raw, err := json.Marshal(spec.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	resource := "inline://" + key + ".json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	p.schema = schema
	return p, nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
