package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// SecretProvider resolves secret references for a given scheme.
type SecretProvider interface {
	Scheme() string
	Resolve(ctx context.Context, reference string) (string, error)
}

// SecretRegistry maps schemes to providers.
type SecretRegistry struct {
	providers map[string]SecretProvider
}

// NewSecretRegistry creates a registry with the env and file providers.
func NewSecretRegistry() *SecretRegistry {
	r := &SecretRegistry{providers: make(map[string]SecretProvider)}
	r.Register(&EnvProvider{})
	r.Register(&FileProvider{})
	return r
}

// Register adds a provider, replacing any existing one for the same scheme.
func (r *SecretRegistry) Register(p SecretProvider) {
	r.providers[p.Scheme()] = p
}

// Resolve looks up the provider for scheme and delegates resolution.
func (r *SecretRegistry) Resolve(ctx context.Context, scheme, reference string) (string, error) {
	p, ok := r.providers[scheme]
	if !ok {
		return "", fmt.Errorf("unknown secret provider scheme %q", scheme)
	}
	return p.Resolve(ctx, reference)
}

// EnvProvider resolves ${env:NAME} from the environment.
type EnvProvider struct{}

func (p *EnvProvider) Scheme() string { return "env" }

func (p *EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	val, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %q not set", ref)
	}
	return val, nil
}

// FileProvider resolves ${file:/path} to the trimmed contents of the file.
type FileProvider struct {
	// AllowedPrefixes restricts readable paths. Empty allows all.
	AllowedPrefixes []string
}

func (p *FileProvider) Scheme() string { return "file" }

func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("file path is empty")
	}
	if len(p.AllowedPrefixes) > 0 {
		allowed := false
		for _, prefix := range p.AllowedPrefixes {
			if strings.HasPrefix(ref, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return "", fmt.Errorf("file path %q not under any allowed prefix", ref)
		}
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("reading secret file %q: %w", ref, err)
	}
	return strings.TrimRight(string(data), " \t\r\n"), nil
}

// secretRefPattern matches a whole-value reference: ${scheme:reference}
var secretRefPattern = regexp.MustCompile(`^\$\{([a-z][a-z0-9]*):(.+)\}$`)

func (r *SecretRegistry) resolveValue(ctx context.Context, path, val string) (string, error) {
	m := secretRefPattern.FindStringSubmatch(val)
	if m == nil {
		return val, nil
	}
	resolved, err := r.Resolve(ctx, m[1], m[2])
	if err != nil {
		return "", fmt.Errorf("secret resolution failed for %s: %w", path, err)
	}
	return resolved, nil
}

// resolveSecrets replaces secret references in the source settings that may
// carry credentials: base_url, user_agent and header values.
func resolveSecrets(ctx context.Context, cfg *Config, r *SecretRegistry) error {
	var err error
	if cfg.Source.BaseURL, err = r.resolveValue(ctx, "source.base_url", cfg.Source.BaseURL); err != nil {
		return err
	}
	if cfg.Source.UserAgent, err = r.resolveValue(ctx, "source.user_agent", cfg.Source.UserAgent); err != nil {
		return err
	}
	for name, val := range cfg.Source.Headers {
		resolved, err := r.resolveValue(ctx, "source.headers."+name, val)
		if err != nil {
			return err
		}
		cfg.Source.Headers[name] = resolved
	}
	return nil
}
