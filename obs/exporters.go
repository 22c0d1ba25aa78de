package obs

import (
	"context"
	"crypto/tls"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

const (
	defaultOTLPEndpoint = "localhost:4317"
	otlpDialTimeout     = 10 * time.Second
)

// newOTLPExporter builds the span exporter for the collector endpoint.
// gRPC is tried first with a blocking dial bounded by otlpDialTimeout; if the
// collector does not speak gRPC the HTTP transport is tried with the same
// endpoint, headers and TLS settings. When both fail, the gRPC error is the
// one reported.
func newOTLPExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultOTLPEndpoint
	}

	ctx, cancel := context.WithTimeout(ctx, otlpDialTimeout)
	defer cancel()

	exporter, grpcErr := newGRPCTraceExporter(ctx, endpoint, opts)
	if grpcErr == nil {
		return exporter, nil
	}

	exporter, httpErr := newHTTPTraceExporter(ctx, endpoint, opts)
	if httpErr != nil {
		return nil, grpcErr
	}
	return exporter, nil
}

func newGRPCTraceExporter(ctx context.Context, endpoint string, opts Options) (sdktrace.SpanExporter, error) {
	grpcOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithBlock()),
	}
	if opts.Insecure {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
	} else {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithTLSCredentials(credentials.NewTLS(&tls.Config{})))
	}
	if len(opts.Headers) > 0 {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}
	return otlptracegrpc.New(ctx, grpcOpts...)
}

func newHTTPTraceExporter(ctx context.Context, endpoint string, opts Options) (sdktrace.SpanExporter, error) {
	httpOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if opts.Insecure {
		httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
	}
	if len(opts.Headers) > 0 {
		httpOpts = append(httpOpts, otlptracehttp.WithHeaders(opts.Headers))
	}
	return otlptracehttp.New(ctx, httpOpts...)
}
