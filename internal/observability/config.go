package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/sentinel/internal/config"
)

// Config carries the logging and OpenTelemetry settings shared by the
// logger, tracing, and metrics providers. Application config supplies the
// defaults; environment variables override them so one deployment knob
// such as OTEL_ENABLED works without editing the .env file.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	return Config{
		ServiceName:          serviceName(cfg),
		Environment:          strings.TrimSpace(envOr("DEPLOYMENT_ENV", cfg.Environment)),
		Version:              strings.TrimSpace(envOr("SERVICE_VERSION", cfg.AppVersion)),
		LogLevel:             normalized(envOr("LOG_LEVEL", "info")),
		LogFormat:            normalized(envOr("LOG_FORMAT", "json")),
		OtelEnabled:          envBool("OTEL_ENABLED", true),
		OtelExporterEndpoint: strings.TrimSpace(envOr("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)),
		OtelExporterProtocol: otlpProtocol(),
		OtelSamplingRatio:    envFloat("OTEL_SAMPLING_RATIO", 0.1),
	}
}

// Debug reports whether verbose diagnostics should be on: an explicit
// debug log level, or any development-flavored environment.
func (c Config) Debug() bool {
	if normalized(c.LogLevel) == "debug" {
		return true
	}
	switch normalized(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func serviceName(cfg config.Config) string {
	if name := strings.TrimSpace(cfg.AppName); name != "" {
		return name
	}
	return "sentinel"
}

// otlpProtocol resolves the exporter protocol, honoring the traces-specific
// variable over the generic one per the OTLP env spec.
func otlpProtocol() string {
	if p := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); p != "" {
		return strings.ToLower(p)
	}
	return normalized(envOr("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
}

func normalized(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	switch normalized(os.Getenv(key)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return parsed
}
