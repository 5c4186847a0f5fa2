// Package instancepool schedules requests over a bounded set of engine
// instances for one model.
//
// A Pool keeps between MinInstances and MaxInstances engines. Acquire hands
// out an idle instance chosen by the configured Strategy, creates one lazily
// while below the bound, or waits up to a timeout for a Release. A timeout is
// reported as its own outcome (IsTimeout) so callers can apply backpressure.
//
// Weights and scratch memory come from an optional memory.Pool. Depending on
// ShareType, instances hold private blocks or references to one shared block;
// a shared block is freed when the last instance holding it is destroyed.
// The pool lock may be held while calling into the memory pool, never the
// other way round.
//
// Files:
//   - config.go: Config, ShareType, Strategy, defaults.
//   - instance.go: Instance and its inference bookkeeping.
//   - pool.go: Acquire/Release and instance creation.
//   - schedule.go: strategy selection.
//   - maintenance.go: CleanupIdle, Warmup, Drain, Close, Stats, Healthy.
package instancepool
