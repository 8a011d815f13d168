// Package observable wraps lending rule handlers with metrics, tracing and logging
// while the handlers themselves stay free of observability code.
//
// Wrappers are applied at wiring time:
//
//	coreHandler := borrow.NewCommandHandler(store, borrow.WithPolicy(policy))
//
//	observableHandler, err := observable.NewCommandWrapper[borrow.Command, borrow.Result](
//		coreHandler,
//		observable.WithCommandMetrics[borrow.Command, borrow.Result](metricsCollector),
//		observable.WithCommandTracing[borrow.Command, borrow.Result](tracingCollector),
//		observable.WithCommandContextualLogging[borrow.Command, borrow.Result](contextualLogger),
//	)
//
//	result, handlerResult, err := observableHandler.Handle(ctx, command)
//
// Rejections by the lending rules, such as a duplicate request or a non-empty queue, are
// expected outcomes. They are counted and logged at info level with status "rejected",
// unlike infrastructure failures which are logged as errors.
package observable
