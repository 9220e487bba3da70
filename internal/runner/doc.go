// Package runner executes a single concurrency level of a sweep.
//
// A level dispatches a fixed number of requests through an [Executor] with
// at most Concurrency of them in flight. A scheduler goroutine hands out
// permits, optionally paced by a requests-per-second limit, and exactly
// min(Concurrency, Requests) workers drain them. Run returns only after
// every dispatched request has produced an outcome.
//
//	r := runner.New(runner.Options{Executor: exec})
//	stats := r.Run(ctx, runner.Level{Concurrency: 25, Requests: 100}, cred, payload, 2*time.Minute)
//
// Outcomes are stored by dispatch index without locking and folded with
// [metrics.Aggregate] after the barrier, so the statistics do not depend on
// completion order.
//
// # Pacing
//
//   - [ArrivalModelUniform]: evenly spaced dispatches via a token bucket
//   - [ArrivalModelPoisson]: exponentially distributed gaps
//
// # Observers
//
// [Observer] implementations see each outcome as it lands; the live progress
// collector, the Prometheus exporter and [LoggingObserver] all hook in here.
package runner
