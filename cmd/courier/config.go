package main

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/synqronlabs/courier"
	"github.com/synqronlabs/courier/mx"
)

// fileConfig is the TOML configuration file layout.
type fileConfig struct {
	Server struct {
		Host               string   `toml:"host"`
		Port               int      `toml:"port"`
		Security           string   `toml:"security"`
		LocalName          string   `toml:"local_name"`
		RequireTLS         bool     `toml:"require_tls"`
		InsecureSkipVerify bool     `toml:"insecure_skip_verify"`
		ConnectTimeout     string   `toml:"connect_timeout"`
		ResponseTimeout    string   `toml:"response_timeout"`
		LookupMX           bool     `toml:"lookup_mx"`
		Nameservers        []string `toml:"nameservers"`
	} `toml:"server"`

	Auth struct {
		Username   string   `toml:"username"`
		Password   string   `toml:"password"`
		Mechanisms []string `toml:"mechanisms"`
	} `toml:"auth"`

	DSN struct {
		Ret    string   `toml:"ret"`
		Notify []string `toml:"notify"`
	} `toml:"dsn"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

// loadConfig reads a TOML file. An empty path yields the defaults.
func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	cfg.Server.Security = "starttls"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing TOML configuration: %w", err)
	}
	return cfg, nil
}

// clientConfig converts the file configuration into a courier.Config.
func (fc *fileConfig) clientConfig(logger *slog.Logger) (courier.Config, error) {
	cfg := courier.DefaultConfig()
	cfg.Host = fc.Server.Host
	cfg.Port = fc.Server.Port
	cfg.RequireTLS = fc.Server.RequireTLS
	cfg.LookupMX = fc.Server.LookupMX
	cfg.Logger = logger
	if fc.Server.LocalName != "" {
		cfg.LocalName = fc.Server.LocalName
	}

	security, err := courier.ParseSecurity(strings.ToLower(fc.Server.Security))
	if err != nil {
		return cfg, err
	}
	cfg.Security = security

	if fc.Server.InsecureSkipVerify {
		cfg.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if cfg.ConnectTimeout, err = parseDuration(fc.Server.ConnectTimeout, cfg.ConnectTimeout); err != nil {
		return cfg, fmt.Errorf("connect_timeout: %w", err)
	}
	if cfg.ResponseTimeout, err = parseDuration(fc.Server.ResponseTimeout, cfg.ResponseTimeout); err != nil {
		return cfg, fmt.Errorf("response_timeout: %w", err)
	}

	if len(fc.Server.Nameservers) > 0 {
		cfg.Resolver = mx.NewResolver(mx.ResolverConfig{Nameservers: fc.Server.Nameservers})
	}

	if fc.Auth.Username != "" {
		cfg.Credentials = &courier.Credentials{
			Username: fc.Auth.Username,
			Password: fc.Auth.Password,
		}
	}
	if len(fc.Auth.Mechanisms) > 0 {
		cfg.AuthMechanisms = nil
		for _, m := range fc.Auth.Mechanisms {
			cfg.AuthMechanisms = append(cfg.AuthMechanisms, courier.AuthMechanism(strings.ToUpper(m)))
		}
	}

	dsn, err := fc.dsn()
	if err != nil {
		return cfg, err
	}
	cfg.DSN = dsn

	return cfg, cfg.Validate()
}

func (fc *fileConfig) dsn() (*courier.DSN, error) {
	if fc.DSN.Ret == "" && len(fc.DSN.Notify) == 0 {
		return nil, nil
	}
	dsn := &courier.DSN{}

	switch strings.ToLower(fc.DSN.Ret) {
	case "":
	case "hdrs":
		dsn.Ret = &courier.DSNRet{Headers: true}
	case "full":
		dsn.Ret = &courier.DSNRet{Full: true}
	default:
		return nil, fmt.Errorf("dsn.ret: unknown value %q", fc.DSN.Ret)
	}

	if len(fc.DSN.Notify) > 0 {
		dsn.Notify = &courier.DSNNotify{}
		for _, n := range fc.DSN.Notify {
			switch strings.ToLower(n) {
			case "success":
				dsn.Notify.Success = true
			case "failure":
				dsn.Notify.Failure = true
			case "delay":
				dsn.Notify.Delay = true
			case "never":
			default:
				return nil, fmt.Errorf("dsn.notify: unknown value %q", n)
			}
		}
	}
	return dsn, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

// newLogger builds the process logger from the [log] section.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
