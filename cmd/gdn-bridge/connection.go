package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	gdnbridge "github.com/glimte/gdn-bridge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

// connectionFlags are shared by every subcommand
type connectionFlags struct {
	URL        string
	ConfigPath string
	Exchange   string
	Endpoint   string
	Peer       string
	Verbose    bool
}

// AddFlags registers the connection flags
func (c *connectionFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&c.URL, "url", "u", "", "RabbitMQ connection URL (overrides the config file)")
	flagSet.StringVarP(&c.ConfigPath, "config", "c", "", "YAML config file with timeouts and broker settings")
	flagSet.StringVar(&c.Exchange, "exchange", "", "exchange shared with GDN")
	flagSet.StringVar(&c.Endpoint, "endpoint", "", "name this side consumes under")
	flagSet.StringVar(&c.Peer, "peer", "", "name GDN consumes under")
	flagSet.BoolVarP(&c.Verbose, "verbose", "v", false, "enable debug logging")
}

// resolve layers the flags over the config file over the defaults
func (c *connectionFlags) resolve() (gdnbridge.Config, error) {
	cfg := gdnbridge.DefaultConfig()
	if c.ConfigPath != "" {
		loaded, err := gdnbridge.LoadConfig(c.ConfigPath)
		if err != nil {
			return gdnbridge.Config{}, err
		}
		cfg = loaded
	}

	if c.URL != "" {
		cfg.AMQP.URL = c.URL
	}
	if c.Exchange != "" {
		cfg.AMQP.Exchange = c.Exchange
	}
	if c.Endpoint != "" {
		cfg.AMQP.LocalName = c.Endpoint
	}
	if c.Peer != "" {
		cfg.AMQP.RemoteName = c.Peer
	}
	return cfg, cfg.Validate()
}

func (c *connectionFlags) logger() *slog.Logger {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connect builds a client. The returned registry holds the bridge metrics
// plus Go runtime and process collectors.
func (c *connectionFlags) connect(ctx context.Context) (*gdnbridge.Client, *prometheus.Registry, error) {
	cfg, err := c.resolve()
	if err != nil {
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.AMQP.DialTimeout.Std()+5*time.Second)
	defer cancel()

	client, err := gdnbridge.NewClient(connectCtx, "",
		gdnbridge.WithConfig(cfg),
		gdnbridge.WithLogger(c.logger()),
		gdnbridge.WithRegisterer(registry),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to GDN: %w", err)
	}
	return client, registry, nil
}
