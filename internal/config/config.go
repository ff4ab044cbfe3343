// Package config assembles the process configuration. Values are layered:
// built-in defaults, then RADIO_* environment variables, then the YAML file
// named by -config.file, then command line flags.
package config

import (
	"flag"
	"io"
	"os"
	"strconv"

	"github.com/grafana/dskit/flagext"
	"github.com/grafana/dskit/server"
	"github.com/pkg/errors"
	"github.com/zachfi/zkit/pkg/tracing"
	"gopkg.in/yaml.v2"

	"github.com/satindergrewal/shuffleradio/internal/catalog"
	"github.com/satindergrewal/shuffleradio/internal/radio"
)

const (
	FileOption = "config.file"

	defaultHTTPPort = 8080
	defaultGRPCPort = 9095
)

type Config struct {
	Target  string         `yaml:"target"`
	Tracing tracing.Config `yaml:"tracing,omitempty"`
	Server  server.Config  `yaml:"server,omitempty"`
	Catalog catalog.Config `yaml:"catalog,omitempty"`
	Radio   radio.Config   `yaml:"radio,omitempty"`
}

func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Target, "target", "all", "Module to run.")

	flagext.DefaultValues(&c.Server)
	f.IntVar(&c.Server.HTTPListenPort, "server.http-listen-port", defaultHTTPPort, "HTTP server listen port.")
	f.IntVar(&c.Server.GRPCListenPort, "server.grpc-listen-port", defaultGRPCPort, "gRPC server listen port.")

	c.Tracing.RegisterFlagsAndApplyDefaults("tracing", f)
	c.Catalog.RegisterFlagsAndApplyDefaults("catalog", f)
	c.Radio.RegisterFlagsAndApplyDefaults("radio", f)
}

// applyEnv overrides the built-in defaults with any RADIO_* variables set.
func (c *Config) applyEnv() {
	c.Catalog.Dir = envStr("RADIO_DIR", c.Catalog.Dir)
	c.Server.HTTPListenPort = envInt("RADIO_PORT", c.Server.HTTPListenPort)
	c.Radio.Format = envStr("RADIO_FORMAT", c.Radio.Format)
	c.Radio.Encoder.Bitrate = envInt("RADIO_BITRATE", c.Radio.Encoder.Bitrate)
}

// Load registers every flag on fs and resolves the configuration for args.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	configFile := findConfigFile(args)

	cfg := &Config{}
	cfg.RegisterFlagsAndApplyDefaults("", fs)
	cfg.applyEnv()

	if configFile != "" {
		buff, err := os.ReadFile(configFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read configFile %s", configFile)
		}

		if err := yaml.UnmarshalStrict(buff, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse configFile %s", configFile)
		}
	}

	flagext.IgnoredFlag(fs, FileOption, "Configuration file to load")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile looks for -config.file anywhere in args. Parsing stops at
// the first unknown flag, so the remaining arguments are retried until the
// option is found or none are left.
func findConfigFile(args []string) string {
	var configFile string

	fs := flag.NewFlagSet("", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&configFile, FileOption, "", "")

	for len(args) > 0 {
		_ = fs.Parse(args)
		args = args[1:]
	}

	return configFile
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
