package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"instconnect/internal/components/chrono"
	"instconnect/internal/components/telemetry"
	"instconnect/internal/connector"
	"instconnect/internal/institutions"
	"instconnect/internal/transport"
	"instconnect/pkg/configutil"
	"instconnect/pkg/serviceutil"

	"cloud.google.com/go/civil"
)

const envPrefix = "CONNECTOR"

// transactions are extracted for this many days up to today unless the
// config says otherwise
const defaultRangeDays = 90

// Config is read from config.json5 and CONNECTOR_* environment variables.
type Config struct {
	Institution string            `json:"institution"`
	BaseUrl     string            `json:"base_url" split_words:"true"`
	Username    string            `json:"username"`
	Password    string            `json:"password"`
	Challenges  map[string]string `json:"challenges" ignored:"true"`

	StartDate string `json:"start_date" split_words:"true"`
	EndDate   string `json:"end_date" split_words:"true"`
	// Timezone decides what "today" is, empty means the local timezone.
	Timezone string `json:"timezone"`

	TimeoutSeconds    int     `json:"timeout_seconds" split_words:"true"`
	RequestsPerSecond float64 `json:"requests_per_second" split_words:"true"`
	CloudflareBypass  bool    `json:"cloudflare_bypass" split_words:"true"`

	Output string `json:"output"`
	// DumpDir, if set, receives a copy of every request and response.
	DumpDir   string           `json:"dump_dir" split_words:"true"`
	Telemetry telemetry.Config `json:"telemetry" ignored:"true"`
}

type resolvedConfig struct {
	institution institutions.Institution
	transport   transport.Options
	creds       connector.Credentials
	options     connector.TransactionOptions
	output      string
}

func resolveConfig(cfg Config, clock chrono.API) (resolvedConfig, error) {
	name := cfg.Institution
	if name == "" {
		name = "plaidypus"
	}
	institution, err := institutions.Lookup(name)
	if err != nil {
		return resolvedConfig{}, err
	}

	end := chrono.Today(clock)
	if cfg.EndDate != "" {
		end, err = civil.ParseDate(cfg.EndDate)
		if err != nil {
			return resolvedConfig{}, fmt.Errorf("end_date: %w", err)
		}
	}
	start := end.AddDays(-defaultRangeDays)
	if cfg.StartDate != "" {
		start, err = civil.ParseDate(cfg.StartDate)
		if err != nil {
			return resolvedConfig{}, fmt.Errorf("start_date: %w", err)
		}
	}
	options := connector.TransactionOptions{StartDate: start, EndDate: end}
	err = options.Validate()
	if err != nil {
		return resolvedConfig{}, err
	}

	if cfg.TimeoutSeconds < 0 {
		return resolvedConfig{}, fmt.Errorf("timeout_seconds must not be negative")
	}

	return resolvedConfig{
		institution: institution,
		transport: transport.Options{
			BaseUrl:           cfg.BaseUrl,
			Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.RequestsPerSecond,
			CloudflareBypass:  cfg.CloudflareBypass,
		},
		creds: connector.Credentials{
			Username:   cfg.Username,
			Password:   cfg.Password,
			Challenges: cfg.Challenges,
		},
		options: options,
		output:  cfg.Output,
	}, nil
}

// environment is everything a command needs to talk to an institution.
type environment struct {
	raw       Config
	clock     chrono.API
	config    resolvedConfig
	extractor connector.Extractor
	tel       telemetry.API
	otel      telemetry.Telemetry
}

// setup loads the config and builds the extractor, it exits on failure.
func setup(ctx context.Context) environment {
	cfg, err := configutil.ReadConfigWithEnv[Config](configPath, envPrefix)
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		serviceutil.Fatal("failed to load timezone", err)
	}
	resolved, err := resolveConfig(cfg, clock)
	if err != nil {
		serviceutil.Fatal("invalid config", err)
	}

	var otel telemetry.Telemetry
	if cfg.Telemetry.Enabled() {
		otel, err = telemetry.Setup(ctx, "connector-cli", cfg.Telemetry)
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
	}

	if cfg.DumpDir != "" {
		dump, err := transport.NewDirectoryDump(cfg.DumpDir)
		if err != nil {
			serviceutil.Fatal("failed to create dump directory", err)
		}
		resolved.transport.Dump = dump
	}

	tel := telemetry.SlogAPI{}
	extractor, err := resolved.institution.Open(resolved.transport, tel)
	if err != nil {
		serviceutil.Fatal("failed to create extractor", err)
	}

	slog.Debug(
		"connector ready",
		"institution", resolved.institution.Name,
		"start", resolved.options.StartDate,
		"end", resolved.options.EndDate,
	)
	return environment{
		raw:       cfg,
		clock:     clock,
		config:    resolved,
		extractor: extractor,
		tel:       tel,
		otel:      otel,
	}
}

// close flushes telemetry, it must run before the process exits.
func (e environment) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.otel.Shutdown(ctx)
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
}
