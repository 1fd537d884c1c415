// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// OtelProvider adapts an OpenTelemetry SDK TracerProvider to this package's
// TracerProvider/Tracer/SpanHandle interfaces, so internal/coordinator can
// instrument runs without importing the otel SDK directly.
type OtelProvider struct {
	tp *sdktrace.TracerProvider
}

// NewOtelProvider builds an OtelProvider exporting spans to exporter
// (typically otlptracehttp or stdouttrace), tagged with serviceName.
func NewOtelProvider(serviceName string, exporter sdktrace.SpanExporter) (*OtelProvider, error) {
	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	return &OtelProvider{tp: tp}, nil
}

func (p *OtelProvider) Tracer(name string) Tracer {
	return &otelTracer{tracer: p.tp.Tracer(name)}
}

func (p *OtelProvider) Shutdown(ctx context.Context) error { return p.tp.Shutdown(ctx) }

func (p *OtelProvider) ForceFlush(ctx context.Context) error { return p.tp.ForceFlush(ctx) }

type otelTracer struct {
	tracer oteltrace.Tracer
}

func (t *otelTracer) Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, SpanHandle) {
	cfg := &SpanConfig{}
	for _, opt := range opts {
		opt.ApplySpanOption(cfg)
	}

	startOpts := []oteltrace.SpanStartOption{oteltrace.WithSpanKind(toOtelKind(cfg.SpanKind))}
	if len(cfg.Attributes) > 0 {
		startOpts = append(startOpts, oteltrace.WithAttributes(toOtelAttributes(cfg.Attributes)...))
	}
	if cfg.Timestamp != nil {
		startOpts = append(startOpts, oteltrace.WithTimestamp(time.Unix(0, *cfg.Timestamp)))
	}

	ctx, span := t.tracer.Start(ctx, name, startOpts...)
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s *otelSpan) End(opts ...SpanEndOption) {
	cfg := &SpanEndConfig{}
	for _, opt := range opts {
		opt.ApplySpanEndOption(cfg)
	}
	var endOpts []oteltrace.SpanEndOption
	if cfg.Timestamp != nil {
		endOpts = append(endOpts, oteltrace.WithTimestamp(time.Unix(0, *cfg.Timestamp)))
	}
	s.span.End(endOpts...)
}

func (s *otelSpan) SetStatus(code StatusCode, message string) {
	switch code {
	case StatusCodeOK:
		s.span.SetStatus(codes.Ok, message)
	case StatusCodeError:
		s.span.SetStatus(codes.Error, message)
	default:
		s.span.SetStatus(codes.Unset, message)
	}
}

func (s *otelSpan) SetAttributes(attrs map[string]any) {
	s.span.SetAttributes(toOtelAttributes(attrs)...)
}

func (s *otelSpan) AddEvent(name string, attrs map[string]any) {
	s.span.AddEvent(name, oteltrace.WithAttributes(toOtelAttributes(attrs)...))
}

func (s *otelSpan) SpanContext() TraceContext {
	sc := s.span.SpanContext()
	return TraceContext{
		TraceID:    sc.TraceID().String(),
		SpanID:     sc.SpanID().String(),
		TraceFlags: byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}

func toOtelKind(kind SpanKind) oteltrace.SpanKind {
	switch kind {
	case SpanKindClient:
		return oteltrace.SpanKindClient
	case SpanKindServer:
		return oteltrace.SpanKindServer
	case SpanKindProducer:
		return oteltrace.SpanKindProducer
	case SpanKindConsumer:
		return oteltrace.SpanKindConsumer
	default:
		return oteltrace.SpanKindInternal
	}
}

func toOtelAttributes(attrs map[string]any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		switch val := v.(type) {
		case string:
			out = append(out, attribute.String(k, val))
		case int:
			out = append(out, attribute.Int(k, val))
		case int64:
			out = append(out, attribute.Int64(k, val))
		case float64:
			out = append(out, attribute.Float64(k, val))
		case bool:
			out = append(out, attribute.Bool(k, val))
		default:
			out = append(out, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return out
}
