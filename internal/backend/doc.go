// Package backend holds the table of inference backend factories.
//
// A Registry maps backend ids to abi.BackendFactory values. Lookups that miss
// ask an optional Discoverer (the plugin loader) for a factory advertising the
// id, register it and retry once. Registering an id that is already present is
// a successful no-op.
//
// Files:
//   - registry.go: Registry, RegisterFactory, CreateEngine, AvailableBackends.
//   - detect.go: model file extension to backend id mapping.
//   - builtins.go: registration of the backends compiled into the binary.
//   - errors.go: error classification helpers.
package backend
