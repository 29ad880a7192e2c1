package mcpserver

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/YoubetDao/MCPForge-Backend-sub000/pkg/crypto"
)

// ImageDefaults are the resources and environment applied to one image.
type ImageDefaults struct {
	CPU    string            `yaml:"cpu"`
	Memory string            `yaml:"memory"`
	Env    map[string]string `yaml:"env"`
}

// Policy maps image names to defaults. Lookups match the image field only.
type Policy struct {
	defaults ImageDefaults
	images   map[string]ImageDefaults
}

type policyFile struct {
	Defaults ImageDefaults            `yaml:"defaults"`
	Images   map[string]ImageDefaults `yaml:"images"`
}

// DefaultPolicy is used when no policy file is configured.
func DefaultPolicy(cpu, memory string) *Policy {
	return &Policy{
		defaults: ImageDefaults{CPU: cpu, Memory: memory},
		images: map[string]ImageDefaults{
			"wikipedia-mcp": {Memory: "1Gi"},
		},
	}
}

// LoadPolicy reads a YAML policy table. Env values prefixed "enc:" are
// decrypted with key. Fields missing from the file's defaults fall back to base.
func LoadPolicy(file string, base ImageDefaults, key string) (*Policy, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	var raw policyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse policy file: %w", err)
	}
	defaults := overlay(base, raw.Defaults)
	if defaults.Env, err = openEnv(raw.Defaults.Env, key); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	p := &Policy{defaults: defaults, images: make(map[string]ImageDefaults, len(raw.Images))}
	if err := validateQuantities("defaults", defaults); err != nil {
		return nil, err
	}
	for image, entry := range raw.Images {
		env, err := openEnv(entry.Env, key)
		if err != nil {
			return nil, fmt.Errorf("image %s: %w", image, err)
		}
		entry.Env = env
		if err := validateQuantities(image, entry); err != nil {
			return nil, err
		}
		p.images[strings.TrimSpace(image)] = entry
	}
	return p, nil
}

// Resolve returns the defaults for image, matching the full reference first
// and then the bare repository name without registry or tag.
func (p *Policy) Resolve(image string) ImageDefaults {
	if p == nil {
		return ImageDefaults{}
	}
	entry, ok := p.images[strings.TrimSpace(image)]
	if !ok {
		entry, ok = p.images[shortImageName(image)]
	}
	resolved := p.defaults
	resolved.Env = copyMap(p.defaults.Env)
	if !ok {
		return resolved
	}
	resolved = overlay(resolved, entry)
	for k, v := range entry.Env {
		if resolved.Env == nil {
			resolved.Env = make(map[string]string, len(entry.Env))
		}
		resolved.Env[k] = v
	}
	return resolved
}

// shortImageName turns "docker.io/mcp/wikipedia-mcp:latest" into "wikipedia-mcp".
func shortImageName(image string) string {
	name := strings.TrimSpace(image)
	if i := strings.Index(name, "@"); i >= 0 {
		name = name[:i]
	}
	name = path.Base(name)
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	return name
}

func overlay(base, over ImageDefaults) ImageDefaults {
	if over.CPU != "" {
		base.CPU = over.CPU
	}
	if over.Memory != "" {
		base.Memory = over.Memory
	}
	return base
}

func openEnv(env map[string]string, key string) (map[string]string, error) {
	if len(env) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(env))
	for name, value := range env {
		plain, err := crypto.Open(key, value)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", name, err)
		}
		out[name] = plain
	}
	return out, nil
}

func validateQuantities(scope string, d ImageDefaults) error {
	for field, value := range map[string]string{"cpu": d.CPU, "memory": d.Memory} {
		if value == "" {
			continue
		}
		if _, err := resource.ParseQuantity(value); err != nil {
			return fmt.Errorf("%s: invalid %s quantity %q: %w", scope, field, value, err)
		}
	}
	return nil
}

func copyMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
