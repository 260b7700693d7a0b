// Package logging provides structured logging for diagramd built on Zap.
//
// Loggers are context-aware: trace, session, and request correlation fields
// stored on the context are attached to every entry. Output goes to stdout
// (JSON or console) and optionally to an OpenTelemetry log provider.
package logging
