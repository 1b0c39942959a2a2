// Package config loads harness configuration and the credential set required
// by the server under test. Settings come from an optional TOML file with
// environment variable overrides; the three required credential fields are
// validated before any target is launched.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
)

// Defaults applied when neither the config file nor the environment provides
// a value.
const (
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 5008
	DefaultSSEPath     = "/sse"
	DefaultMessagePath = "/message"
	DefaultToolName    = "azmcp-group-list"
)

// Credentials holds the identity the server under test needs to reach its
// backing cloud tenant. TenantID, ClientID and ClientSecret are required;
// SubscriptionID is optional and only gates the tools/call step.
type Credentials struct {
	TenantID       string `toml:"tenant_id"`
	ClientID       string `toml:"client_id"`
	ClientSecret   string `toml:"client_secret"`
	SubscriptionID string `toml:"subscription_id"`
}

// Env returns the credential fields as KEY=VALUE pairs suitable for injecting
// into a launched target.
func (c Credentials) Env() []string {
	env := []string{
		"AZURE_TENANT_ID=" + c.TenantID,
		"AZURE_CLIENT_ID=" + c.ClientID,
		"AZURE_CLIENT_SECRET=" + c.ClientSecret,
	}
	if c.SubscriptionID != "" {
		env = append(env, "AZURE_SUBSCRIPTION_ID="+c.SubscriptionID)
	}
	return env
}

// MissingCredentialsError reports which required credential fields are absent.
// It is a hard precondition failure raised before any process is spawned.
type MissingCredentialsError struct {
	Fields []string
}

func (e *MissingCredentialsError) Error() string {
	return "missing required credentials: " + strings.Join(e.Fields, ", ")
}

// ProcessConfig describes the local-process target.
type ProcessConfig struct {
	Binary string   `toml:"binary"`
	Args   []string `toml:"args"`
	// Build is run once when Binary does not exist yet, e.g. ["go", "build",
	// "-o", "bin/server", "./cmd/server"]. A missing binary with no build
	// command configured is a launch failure.
	Build []string `toml:"build"`
	Dir   string   `toml:"dir"`
}

// ContainerConfig describes the standalone-container target.
type ContainerConfig struct {
	Image      string `toml:"image"`
	Name       string `toml:"name"`
	Dockerfile string `toml:"dockerfile"`
	Context    string `toml:"context"`
}

// ComposeConfig describes the compose-stack target.
type ComposeConfig struct {
	File    string `toml:"file"`
	Project string `toml:"project"`
}

// Config stores every runtime setting for one harness run.
type Config struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	SSEPath     string `toml:"sse_path"`
	MessagePath string `toml:"message_path"`

	// ReadyAttempts bounds the readiness poll loop; each attempt is spaced
	// one second apart.
	ReadyAttempts int `toml:"ready_attempts"`

	// ToolName is the tool invoked by the conditional tools/call step.
	ToolName string `toml:"tool_name"`

	Credentials Credentials     `toml:"credentials"`
	Process     ProcessConfig   `toml:"process"`
	Container   ContainerConfig `toml:"container"`
	Compose     ComposeConfig   `toml:"compose"`
}

// New returns a Config populated with defaults and environment overrides but
// no file settings.
func New() (*Config, error) {
	cfg := defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the TOML file at path, then overlays environment variables.
// Environment values win over file values so CI can override a checked-in
// config without editing it.
func Load(path string) (*Config, error) {
	cfg := defaults()

	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		WeaklyTypedInput: true,
		Result:           cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("apply config file %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		SSEPath:       DefaultSSEPath,
		MessagePath:   DefaultMessagePath,
		ReadyAttempts: 15,
		ToolName:      DefaultToolName,
	}
}

func (c *Config) applyEnv() error {
	setString(&c.Host, "MCPSMOKE_HOST")
	if v := os.Getenv("MCPSMOKE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			// A typoed override must not quietly fall back to the default.
			return fmt.Errorf("invalid MCPSMOKE_PORT %q: %w", v, err)
		}
		c.Port = port
	}
	setString(&c.Credentials.TenantID, "AZURE_TENANT_ID")
	setString(&c.Credentials.ClientID, "AZURE_CLIENT_ID")
	setString(&c.Credentials.ClientSecret, "AZURE_CLIENT_SECRET")
	setString(&c.Credentials.SubscriptionID, "AZURE_SUBSCRIPTION_ID")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the hard launch preconditions. It returns a
// *MissingCredentialsError naming every absent required field.
func (c *Config) Validate() error {
	var missing []string
	if c.Credentials.TenantID == "" {
		missing = append(missing, "tenant_id")
	}
	if c.Credentials.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if c.Credentials.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return &MissingCredentialsError{Fields: missing}
	}
	return nil
}

// BaseURL returns the http root the harness probes and streams from.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// SSEURL returns the streaming endpoint URL.
func (c *Config) SSEURL() string {
	return c.BaseURL() + c.SSEPath
}
