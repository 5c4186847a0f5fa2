// Package manager maps model ids to instance pools and is the single entry
// point for inference. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (State, Snapshot, per-model entries).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, ...).
//   - helpers.go: model lookup and instance pool configuration.
//   - ensure.go: EnsureModel lifecycle and warmup.
//   - evict.go: eviction of idle pools when the memory pool is exhausted.
//   - infer.go: inference entry point and tensor conversion.
//   - unload.go: graceful drain and removal of a model.
//   - ops.go: asynchronous operations such as Switch.
//   - reaper.go: background idle cleanup.
//   - usage.go: usage persistence across restarts.
//   - status_report.go: Status/Snapshot and backend/plugin listings.
//   - sanity.go: dependency checks for the doctor command.
//
// Lock order is Manager before instance pool before memory pool. The manager
// lock is never held across a call that can block on an instance pool.
package manager
