// Package config loads client settings from YAML or TOML files.
//
// Durations are written in milliseconds. The reconnect and heartbeat keys
// take either a boolean or a table:
//
//	url: wss://rt.example.com/ws
//	token: s3cret
//	reconnect:
//	  max_attempts: 10
//	  delay: 500
//	heartbeat: false
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/kleeedolinux/socketclient/socket"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrInvalidValue      = errors.New("config: invalid value")
)

// File mirrors the on-disk layout.
type File struct {
	URL       string            `yaml:"url" toml:"url"`
	Namespace string            `yaml:"namespace" toml:"namespace"`
	Token     string            `yaml:"token" toml:"token"`
	Query     map[string]string `yaml:"query" toml:"query"`
	Protocols []string          `yaml:"protocols" toml:"protocols"`
	Debug     bool              `yaml:"debug" toml:"debug"`
	Reconnect *Reconnect        `yaml:"reconnect" toml:"-"`
	Heartbeat *Heartbeat        `yaml:"heartbeat" toml:"-"`
}

type Reconnect struct {
	Enabled     *bool    `yaml:"enabled" toml:"enabled"`
	MaxAttempts *int     `yaml:"max_attempts" toml:"max_attempts"`
	Delay       *int64   `yaml:"delay" toml:"delay"`
	MaxDelay    *int64   `yaml:"max_delay" toml:"max_delay"`
	Factor      *float64 `yaml:"factor" toml:"factor"`
}

type Heartbeat struct {
	Enabled  *bool  `yaml:"enabled" toml:"enabled"`
	Interval *int64 `yaml:"interval" toml:"interval"`
	Timeout  *int64 `yaml:"timeout" toml:"timeout"`
}

func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads path and returns the client configuration it describes, layered
// over socket.DefaultConfig.
func Load(path string) (socket.Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return socket.Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return socket.Config{}, fmt.Errorf("load config: %w", err)
	}

	return Parse(data, format)
}

func Parse(data []byte, format Format) (socket.Config, error) {
	var (
		f   File
		err error
	)
	switch format {
	case FormatYAML:
		f, err = parseYAML(data)
	case FormatTOML:
		f, err = parseTOML(data)
	default:
		return socket.Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return socket.Config{}, err
	}

	return f.Apply(socket.DefaultConfig())
}

// Apply overlays the values present in f onto base.
func (f File) Apply(base socket.Config) (socket.Config, error) {
	cfg := base

	if v := strings.TrimSpace(f.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(f.Namespace); v != "" {
		cfg.Namespace = v
	}
	if f.Token != "" {
		cfg.Token = f.Token
	}
	if len(f.Query) > 0 {
		query := make(map[string]string, len(base.Query)+len(f.Query))
		for k, v := range base.Query {
			query[k] = v
		}
		for k, v := range f.Query {
			query[k] = v
		}
		cfg.Query = query
	}
	if len(f.Protocols) > 0 {
		cfg.Protocols = append([]string(nil), f.Protocols...)
	}
	if f.Debug {
		cfg.Debug = true
	}

	if f.Reconnect != nil {
		rc, err := f.Reconnect.apply(cfg.Reconnect)
		if err != nil {
			return socket.Config{}, err
		}
		cfg.Reconnect = rc
	}
	if f.Heartbeat != nil {
		hb, err := f.Heartbeat.apply(cfg.Heartbeat)
		if err != nil {
			return socket.Config{}, err
		}
		cfg.Heartbeat = hb
	}

	return cfg, nil
}

func (r Reconnect) apply(rc socket.ReconnectConfig) (socket.ReconnectConfig, error) {
	rc.Enabled = true
	if r.Enabled != nil {
		rc.Enabled = *r.Enabled
	}
	if r.MaxAttempts != nil {
		if *r.MaxAttempts < 0 {
			return rc, fmt.Errorf("%w: reconnect.max_attempts must be >= 0", ErrInvalidValue)
		}
		rc.MaxAttempts = *r.MaxAttempts
	}
	if r.Delay != nil {
		d, err := millis("reconnect.delay", *r.Delay)
		if err != nil {
			return rc, err
		}
		rc.Delay = d
	}
	if r.MaxDelay != nil {
		if *r.MaxDelay == 0 {
			return rc, fmt.Errorf("%w: reconnect.max_delay must be > 0", ErrInvalidValue)
		}
		d, err := millis("reconnect.max_delay", *r.MaxDelay)
		if err != nil {
			return rc, err
		}
		rc.MaxDelay = d
	}
	if r.Factor != nil {
		if *r.Factor < 1 {
			return rc, fmt.Errorf("%w: reconnect.factor must be >= 1", ErrInvalidValue)
		}
		rc.Factor = *r.Factor
	}
	return rc, nil
}

func (h Heartbeat) apply(hb socket.HeartbeatConfig) (socket.HeartbeatConfig, error) {
	hb.Enabled = true
	if h.Enabled != nil {
		hb.Enabled = *h.Enabled
	}
	if h.Interval != nil {
		d, err := millis("heartbeat.interval", *h.Interval)
		if err != nil {
			return hb, err
		}
		hb.Interval = d
	}
	if h.Timeout != nil {
		d, err := millis("heartbeat.timeout", *h.Timeout)
		if err != nil {
			return hb, err
		}
		hb.Timeout = d
	}
	return hb, nil
}

func millis(key string, v int64) (time.Duration, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must be >= 0", ErrInvalidValue, key)
	}
	return time.Duration(v) * time.Millisecond, nil
}

func boolPtr(b bool) *bool {
	return &b
}

func parseTOML(data []byte) (File, error) {
	var raw struct {
		File
		Reconnect toml.Primitive `toml:"reconnect"`
		Heartbeat toml.Primitive `toml:"heartbeat"`
	}
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return File{}, fmt.Errorf("parse toml: %w", err)
	}

	f := raw.File
	switch meta.Type("reconnect") {
	case "":
	case "Bool":
		var on bool
		if err := meta.PrimitiveDecode(raw.Reconnect, &on); err != nil {
			return File{}, fmt.Errorf("parse reconnect: %w", err)
		}
		f.Reconnect = &Reconnect{Enabled: boolPtr(on)}
	case "Hash":
		var rc Reconnect
		if err := meta.PrimitiveDecode(raw.Reconnect, &rc); err != nil {
			return File{}, fmt.Errorf("parse reconnect: %w", err)
		}
		f.Reconnect = &rc
	default:
		return File{}, fmt.Errorf("%w: reconnect must be a boolean or a table", ErrInvalidValue)
	}

	switch meta.Type("heartbeat") {
	case "":
	case "Bool":
		var on bool
		if err := meta.PrimitiveDecode(raw.Heartbeat, &on); err != nil {
			return File{}, fmt.Errorf("parse heartbeat: %w", err)
		}
		f.Heartbeat = &Heartbeat{Enabled: boolPtr(on)}
	case "Hash":
		var hb Heartbeat
		if err := meta.PrimitiveDecode(raw.Heartbeat, &hb); err != nil {
			return File{}, fmt.Errorf("parse heartbeat: %w", err)
		}
		f.Heartbeat = &hb
	default:
		return File{}, fmt.Errorf("%w: heartbeat must be a boolean or a table", ErrInvalidValue)
	}

	return f, nil
}
