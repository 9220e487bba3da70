// Package metrics classifies request outcomes and aggregates them per concurrency level.
//
// # Outcomes
//
// Every dispatched request yields exactly one [Outcome]: its latency, whether it
// succeeded, the response status (if any) and an [ErrorKind] classification.
//
// # Aggregation
//
// [Aggregate] folds a level's outcomes into [LevelStats]:
//
//	stats := metrics.Aggregate(level, outcomes)
//	fmt.Println(stats.P95Latency, stats.Errors[metrics.KindTimeout])
//
// The fold is commutative, so the result does not depend on the order in
// which outcomes completed. Percentiles use the nearest-rank method over all
// attempted requests; timeouts contribute their timeout as latency.
//
// # Live Progress
//
// [Collector] keeps an HDR histogram of the running level so a progress
// reporter can poll [Collector.Snapshot] without touching the final fold.
//
// # Prometheus
//
// [Exporter] mirrors outcomes into a dedicated Prometheus registry and can
// serve it on /metrics while a sweep runs.
package metrics
