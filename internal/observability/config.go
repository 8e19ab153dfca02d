package observability

import (
	"os"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/config"
)

// Config holds the observability slice of the application configuration.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Development bool

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig derives the observability settings. DEPLOYMENT_ENV and
// SERVICE_VERSION override the application values for telemetry resources.
func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "paymatrix"
	}
	environment := cfg.Environment
	if v := strings.TrimSpace(os.Getenv("DEPLOYMENT_ENV")); v != "" {
		environment = v
	}
	version := cfg.AppVersion
	if v := strings.TrimSpace(os.Getenv("SERVICE_VERSION")); v != "" {
		version = v
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(environment),
		Version:              strings.TrimSpace(version),
		Development:          cfg.IsDevelopment(),
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: cfg.OTLPProtocol,
		OtelSamplingRatio:    cfg.OtelSamplingRatio,
	}
}

// Debug turns on stack traces and verbose request logs.
func (c Config) Debug() bool {
	return c.LogLevel == "debug" || c.Development
}
