package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	scfg "github.com/ihippik/config"
	"github.com/sethvargo/go-envconfig"

	"github.com/ihippik/vm-trace/internal/vmtrace"
)

const envPrefix = "VMTRACE_"

// defaults backs required fields of the shared config types so a bare
// -agentpath without options still attaches.
var defaults = map[string]string{
	"LOG_LEVEL": string(scfg.LoggerLevelInfo),
	"LOG_FMT":   "text",
}

var ErrMalformedOption = errors.New("malformed agent option")

type Config struct {
	Logger      *scfg.Logger `env:",prefix=LOG_"`
	Monitoring  scfg.Monitoring
	Output      string   `env:"OUTPUT, default=stderr"`
	DottedNames bool     `env:"DOTTED_NAMES, default=false"`
	Events      []string `env:"EVENTS, delimiter=;"`
}

// InitConfig reads the agent options string ("key=value,key=value") and falls
// back to VMTRACE_-prefixed environment variables, then built-in defaults,
// for anything it omits.
func InitConfig(ctx context.Context, options string) (*Config, error) {
	var cfg Config

	opts, err := ParseOptions(options)
	if err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}

	lookuper := envconfig.MultiLookuper(
		envconfig.MapLookuper(opts),
		envconfig.PrefixLookuper(envPrefix, envconfig.OsLookuper()),
		envconfig.MapLookuper(defaults),
	)

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("process: %w", err)
	}

	return &cfg, nil
}

// ParseOptions splits an agent options string into upper-cased keys.
func ParseOptions(options string) (map[string]string, error) {
	opts := make(map[string]string)

	for _, token := range strings.Split(options, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		key, value, ok := strings.Cut(token, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("%q: %w", token, ErrMalformedOption)
		}

		opts[strings.ToUpper(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}

	return opts, nil
}

// Kinds converts the configured event names.
func (c *Config) Kinds() ([]vmtrace.Kind, error) {
	kinds := make([]vmtrace.Kind, 0, len(c.Events))

	for _, name := range c.Events {
		if strings.TrimSpace(name) == "" {
			continue
		}

		kind, ok := vmtrace.ParseKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown event %q", name)
		}

		kinds = append(kinds, kind)
	}

	return kinds, nil
}

// OpenOutput returns the trace destination. The closer is a no-op for the
// standard streams.
func (c *Config) OpenOutput() (io.Writer, func() error, error) {
	switch strings.ToLower(c.Output) {
	case "", "stderr":
		return vmtrace.Stderr, func() error { return nil }, nil
	case "stdout":
		return vmtrace.Stdout, func() error { return nil }, nil
	}

	f, err := os.OpenFile(c.Output, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open output: %w", err)
	}

	return f, f.Close, nil
}

// AgentOptions maps the configuration onto vmtrace.Options.
func (c *Config) AgentOptions(output io.Writer) (vmtrace.Options, error) {
	kinds, err := c.Kinds()
	if err != nil {
		return vmtrace.Options{}, fmt.Errorf("events: %w", err)
	}

	return vmtrace.Options{
		Output:      output,
		DottedNames: c.DottedNames,
		Events:      kinds,
	}, nil
}
