// Package plugin loads inference backends from dynamic libraries.
//
// A plugin library exports the two entry points named in package abi
// (GetInfo and GetInterface). The Loader keeps an ordered list of search
// directories and the set of loaded plugins, and drives each plugin through
// its lifecycle:
//
//	Unloaded -> Loaded -> Initialized -> Loaded -> Unloaded
//
// with Error reachable when initialization fails and Deprecated set on an
// older version once a newer plugin with the same name is loaded.
//
// Initializing an inference-engine plugin fetches its BackendFactory (by
// calling CreateInstance with a nil config) and registers it with the
// Registrar; finalizing unregisters it. The Loader also implements
// backend.Discoverer so a registry miss can pull a backend from disk.
//
// Validity markers and the ABI version are checked on everything a library
// returns, and every call into plugin code runs under recover so a faulty
// plugin fails only the operation at hand.
package plugin
