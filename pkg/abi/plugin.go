package abi

// Exported symbol names resolved by the host in every plugin library.
const (
	SymbolGetInfo      = "GetInfo"
	SymbolGetInterface = "GetInterface"
)

// Validity markers. A library whose Info or Interface does not carry the
// matching marker is rejected at load time.
const (
	InfoMagic      uint32 = 0x4D44594E // "MDYN"
	InterfaceMagic uint32 = 0x4D445649 // "MDVI"
)

// ABIVersion is bumped on incompatible changes to this package.
const ABIVersion uint32 = 1

// PluginType classifies what a plugin provides.
type PluginType int

const (
	PluginUnknown PluginType = iota
	PluginInferenceEngine
	PluginPreprocessor
	PluginPostprocessor
)

func (t PluginType) String() string {
	switch t {
	case PluginInferenceEngine:
		return "inference_engine"
	case PluginPreprocessor:
		return "preprocessor"
	case PluginPostprocessor:
		return "postprocessor"
	default:
		return "unknown"
	}
}

// Dependency names another plugin and a semver constraint on its version,
// e.g. {Name: "tokenizer", Constraint: ">= 1.2"}.
type Dependency struct {
	Name       string
	Constraint string
}

// PluginInfo is returned by the GetInfo entry point.
type PluginInfo struct {
	Magic        uint32
	ABIVersion   uint32
	Name         string
	Description  string
	Author       string
	Version      Version
	Type         PluginType
	Backend      BackendID
	Dependencies []Dependency
}

// Valid checks the validity marker and ABI version.
func (i *PluginInfo) Valid() bool {
	return i != nil && i.Magic == InfoMagic && i.ABIVersion == ABIVersion && i.Name != ""
}

// PluginInterface is returned by the GetInterface entry point. Every function
// field is optional except CreateInstance for inference-engine plugins.
type PluginInterface struct {
	Magic uint32

	Initialize         func(config map[string]string) error
	Finalize           func() error
	CreateInstance     func(cfg *EngineConfig) (any, error)
	DestroyInstance    func(instance any) error
	CheckCompatibility func(host Version) bool
	SelfTest           func() error
	ConfigSchema       func() string
	Control            func(command string, arg any) (any, error)
}

// Valid checks the validity marker.
func (p *PluginInterface) Valid() bool {
	return p != nil && p.Magic == InterfaceMagic
}

// GetInfoFunc and GetInterfaceFunc are the signatures of the two entry points.
type (
	GetInfoFunc      = func() *PluginInfo
	GetInterfaceFunc = func() *PluginInterface
)
