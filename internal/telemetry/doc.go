// Package telemetry centralizes OpenTelemetry TracerProvider and
// MeterProvider construction for the proxy runtime. It only builds the
// providers; no code in this module starts spans or sets span attributes.
// When telemetry is disabled, a noop implementation is used and no external
// service is contacted.
package telemetry
