package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectFileName is the project configuration resource under the PM root.
const ProjectFileName = "config.json"

const envPrefix = "PMDISPATCH"

// ErrConfigurationMissing is returned when the project configuration resource
// or a required credential is absent. It is fatal before any dispatch.
var ErrConfigurationMissing = errors.New("configuration missing")

// Project is the project configuration resource written once by `pmdispatch init`.
type Project struct {
	ProjectRoot  string `json:"projectRoot" mapstructure:"projectRoot"`
	FrontendPath string `json:"frontendPath" mapstructure:"frontendPath"`
	BackendPath  string `json:"backendPath" mapstructure:"backendPath"`
	PMPath       string `json:"pmPath" mapstructure:"pmPath"`
	ProjectName  string `json:"projectName" mapstructure:"projectName"`
	CreatedAt    string `json:"createdAt" mapstructure:"createdAt"`

	v *viper.Viper
}

var projectKeys = map[string]string{
	"projectRoot":  "PROJECT_ROOT",
	"frontendPath": "FRONTEND_PATH",
	"backendPath":  "BACKEND_PATH",
	"pmPath":       "PM_PATH",
	"projectName":  "PROJECT_NAME",
	"createdAt":    "CREATED_AT",
}

// LoadProject reads <pmRoot>/config.json. Every key can be overridden with a
// PMDISPATCH_<KEY> environment variable (e.g. PMDISPATCH_PROJECT_ROOT).
// A nil viper instance gets a fresh one.
func LoadProject(pmRoot string, v *viper.Viper) (*Project, error) {
	if v == nil {
		v = viper.New()
	}

	path := filepath.Join(pmRoot, ProjectFileName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s not found; run `pmdispatch init` first to set up the project", ErrConfigurationMissing, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	for key, env := range projectKeys {
		if err := v.BindEnv(key, envPrefix+"_"+env); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read project config: %w", err)
	}

	p := &Project{v: v}
	if err := v.Unmarshal(p); err != nil {
		return nil, fmt.Errorf("decode project config: %w", err)
	}

	if p.ProjectRoot == "" {
		return nil, fmt.Errorf("%w: projectRoot is empty in %s", ErrConfigurationMissing, path)
	}
	if p.PMPath == "" {
		p.PMPath = pmRoot
	}

	return p, nil
}

// NewProject builds a project record for `pmdispatch init`.
func NewProject(name, root, frontend, backend, pmPath string, now time.Time) *Project {
	return &Project{
		ProjectRoot:  root,
		FrontendPath: frontend,
		BackendPath:  backend,
		PMPath:       pmPath,
		ProjectName:  name,
		CreatedAt:    now.UTC().Format(time.RFC3339),
	}
}

// Codebases maps codebase names to directories. Relative paths resolve
// against ProjectRoot; unset paths are left out.
func (p *Project) Codebases() map[string]string {
	dirs := make(map[string]string, 2)
	for name, dir := range map[string]string{
		CodebaseFrontend: p.FrontendPath,
		CodebaseBackend:  p.BackendPath,
	} {
		if dir == "" {
			continue
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(p.ProjectRoot, dir)
		}
		dirs[name] = dir
	}
	return dirs
}

// Credential returns the value of the named environment variable.
func (p *Project) Credential(env string) string {
	if p.v == nil {
		p.v = viper.New()
	}
	key := "credentials." + strings.ToLower(env)
	if err := p.v.BindEnv(key, env); err != nil {
		return ""
	}
	return p.v.GetString(key)
}

// RequireCredentials checks the credential of every provider used by the
// given agents. Providers without a credential_env are skipped.
func (p *Project) RequireCredentials(cfg *Config, agents ...string) error {
	var missing []string
	seen := make(map[string]bool)
	for _, name := range agents {
		agent, ok := cfg.Agents[name]
		if !ok {
			continue
		}
		provider := cfg.Providers[agent.Provider]
		env := provider.CredentialEnv
		if env == "" || seen[env] {
			continue
		}
		seen[env] = true
		if p.Credential(env) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: environment variable(s) %s not set", ErrConfigurationMissing, strings.Join(missing, ", "))
	}
	return nil
}
