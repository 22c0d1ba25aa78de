package obs

import "log/slog"

// ExporterType enumerates supported tracing exporter backends.
type ExporterType string

const (
	ExporterOTLP   ExporterType = "otlp"
	ExporterStdout ExporterType = "stdout"
	ExporterNone   ExporterType = "none"
)

// Options control observability initialization.
type Options struct {
	ServiceName string
	Environment string
	Version     string

	Exporter    ExporterType
	Endpoint    string
	Insecure    bool
	Headers     map[string]string
	SampleRatio float64

	Audit AuditOptions

	DisableMetrics bool
}

// AuditOptions configure the structured transaction audit sink.
type AuditOptions struct {
	Enabled bool

	// Logger receives one record per transaction. Defaults to slog.Default().
	Logger *slog.Logger

	// RedactPatient strips patient identifiers from audit records.
	RedactPatient bool
}

// DefaultOptions returns sane defaults when env configuration is partial.
func DefaultOptions() Options {
	return Options{
		Exporter:    ExporterOTLP,
		SampleRatio: 1.0,
		Audit: AuditOptions{
			Enabled: true,
		},
	}
}
