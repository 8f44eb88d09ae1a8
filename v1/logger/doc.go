// Package logger provides the structured logger of the schema registry.
//
// Registry packages never import zap. Each declares a small Logger interface
// with the methods below and receives a *Logger through fx or its constructor:
//
//	log := logger.NewLoggerClient(logger.Config{Level: logger.Info, ServiceName: "schema-registry"})
//	log.Info("artifact registered", nil, map[string]interface{}{
//		"groupId":    "default",
//		"artifactId": "orders-value",
//	})
//
// Entries are JSON with an ISO8601 "timestamp" and carry "pid" and "service".
// With EnableTracing set, the *WithContext variants add the trace_id and
// span_id of the active OpenTelemetry span.
//
// Tests use NewNop, or New with a zaptest/observer core to assert on entries.
package logger
