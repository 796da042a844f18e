// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package svcrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Config describes a client connection in YAML:
//
//	transport: json
//	address: http://localhost:5025/api
//	timeout: 10s
//	retries: 2
//	headers:
//	  Authorization: Bearer abc
//	rateLimit:
//	  rps: 50
//	  burst: 10
type Config struct {
	Transport string            `yaml:"transport"`
	Address   string            `yaml:"address"`
	Codec     string            `yaml:"codec"`
	Timeout   time.Duration     `yaml:"timeout"`
	Retries   int               `yaml:"retries"`
	Headers   map[string]string `yaml:"headers"`
	RateLimit RateLimitConfig   `yaml:"rateLimit"`
}

// RateLimitConfig enables the RateLimit middleware when RPS is positive.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ParseConfig decodes a YAML client config. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML client config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client config: %w", err)
	}
	return ParseConfig(data)
}

// Validate checks the fields that do not depend on registered transports.
func (c *Config) Validate() error {
	if c.Address == "" {
		return errors.New("client config: address is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("client config: negative timeout %s", c.Timeout)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return errors.New("client config: rate limit must not be negative")
	}
	switch c.Codec {
	case "", "json", "binary":
	default:
		return fmt.Errorf("client config: unknown codec %q", c.Codec)
	}
	return nil
}

// DialOptions converts the config into Dial options.
func (c *Config) DialOptions() []DialOption {
	var opts []DialOption
	if c.Transport != "" {
		opts = append(opts, WithTransport(c.Transport))
	}
	if c.Codec == "binary" {
		opts = append(opts, WithCodec(Binary))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.Retries > 0 {
		opts = append(opts, WithRetries(c.Retries))
	}
	for k, v := range c.Headers {
		opts = append(opts, WithHeader(k, v))
	}
	if c.RateLimit.RPS > 0 {
		burst := c.RateLimit.Burst
		if burst == 0 {
			burst = 1
		}
		opts = append(opts, WithMiddleware(RateLimit(rate.NewLimiter(rate.Limit(c.RateLimit.RPS), burst))))
	}
	return opts
}

// DialConfig dials the client described by cfg. extra options are applied
// after the config's own.
func DialConfig(ctx context.Context, cfg *Config, extra ...DialOption) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Dial(ctx, cfg.Address, append(cfg.DialOptions(), extra...)...)
}
