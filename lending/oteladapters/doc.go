// Package oteladapters implements the lending observability interfaces on top of OpenTelemetry.
//
// The store, the lending rules and the daemon only depend on the small interfaces in package lending.
// Wire these adapters in when the process exports telemetry through an OpenTelemetry SDK:
//
//	store, err := postgresstore.NewStoreFromPGXPool(pool,
//		postgresstore.WithContextualLogger(oteladapters.NewSlogBridgeLogger("lendingd")),
//		postgresstore.WithMetrics(oteladapters.NewMetricsCollector(meterProvider.Meter("lendingd"))),
//		postgresstore.WithTracing(oteladapters.NewTracingCollector(tracerProvider.Tracer("lendingd"))),
//	)
package oteladapters
