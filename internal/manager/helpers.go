package manager

import (
	"fmt"

	"modyn/internal/instancepool"
	"modyn/pkg/abi"
	"modyn/pkg/types"
)

// Helper: find model in catalog by id.
func (m *Manager) getModelByID(id string) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// resolveID substitutes the default model for an empty id.
func (m *Manager) resolveID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if m.defaultModel == "" {
		return "", modelNotFoundError{id: "(unspecified)"}
	}
	return m.defaultModel, nil
}

// poolConfig builds the instance pool configuration for mdl from the
// defaults and the model's override.
func (m *Manager) poolConfig(mdl types.Model) (instancepool.Config, int, error) {
	cfg := m.poolDefaults
	cfg.ModelID = mdl.ID
	cfg.ModelPath = mdl.Path
	cfg.Backend = abi.BackendID(mdl.Backend)
	cfg.Engine.Backend = cfg.Backend
	if cfg.Logger == nil {
		l := m.log
		cfg.Logger = &l
	}
	ov, ok := m.overrides[mdl.ID]
	if !ok {
		return cfg, 0, nil
	}
	if ov.MinInstances > 0 {
		cfg.MinInstances = ov.MinInstances
	}
	if ov.MaxInstances > 0 {
		cfg.MaxInstances = ov.MaxInstances
	}
	if ov.Strategy != "" {
		s, err := instancepool.ParseStrategy(ov.Strategy)
		if err != nil {
			return cfg, 0, invalidRequestError{msg: fmt.Sprintf("model %s: %v", mdl.ID, err)}
		}
		cfg.Strategy = s
	}
	if ov.Share != "" {
		s, err := instancepool.ParseShareType(ov.Share)
		if err != nil {
			return cfg, 0, invalidRequestError{msg: fmt.Sprintf("model %s: %v", mdl.ID, err)}
		}
		cfg.Share = s
	}
	if len(ov.Options) > 0 {
		opts := make(map[string]string, len(cfg.Engine.Options)+len(ov.Options))
		for k, v := range cfg.Engine.Options {
			opts[k] = v
		}
		for k, v := range ov.Options {
			opts[k] = v
		}
		cfg.Engine.Options = opts
	}
	return cfg, ov.Priority, nil
}
