// Package abi defines the contract shared between the modyn host and its
// inference backends, including backends shipped as dynamically loaded plugins.
//
// The package is deliberately small and dependency-light so that plugin authors
// can import it without pulling in the host:
//
//   - tensor.go: the tensor exchange type and its enums (dtype, layout, memory kind).
//   - engine.go: the Engine interface every backend implements, plus BackendFactory.
//   - plugin.go: PluginInfo / PluginInterface, the two exported entry points and
//     the validity markers checked by the host when a library is opened.
//   - version.go: Version parsing and ordering.
//
// A plugin is a Go plugin (built with -buildmode=plugin) exporting two functions:
//
//	func GetInfo() *abi.PluginInfo
//	func GetInterface() *abi.PluginInterface
//
// For inference-engine plugins, calling PluginInterface.CreateInstance with a nil
// config returns the plugin's *BackendFactory instead of creating an engine.
package abi
