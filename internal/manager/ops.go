package manager

import (
	"context"

	"github.com/google/uuid"
)

// Switch validates modelID and loads it in the background, returning an
// operation ID. Progress is published as switch_start/switch_done events
// and is visible through Status.
func (m *Manager) Switch(ctx context.Context, modelID string) (string, error) {
	id, err := m.resolveID(modelID)
	if err != nil {
		return "", err
	}
	m.mu.RLock()
	closed := m.closed
	_, known := m.getModelByID(id)
	m.mu.RUnlock()
	if closed {
		return "", ErrManagerClosed
	}
	if !known {
		return "", ErrModelNotFound(id)
	}
	op := m.nextOpID()
	m.publish("switch_start", id, map[string]any{"op": op})
	go func(opID string) {
		// Detached: the load continues after the caller's request ends.
		err := m.EnsureModel(context.Background(), id)
		fields := map[string]any{"op": opID}
		if err != nil {
			fields["error"] = err.Error()
		}
		m.publish("switch_done", id, fields)
	}(op)
	return op, nil
}

func (m *Manager) nextOpID() string { return uuid.NewString() }

// SetInstancePriority changes the scheduling priority of one instance of a
// loaded model. It only affects pools using the priority strategy.
func (m *Manager) SetInstancePriority(modelID, instanceID string, priority int) error {
	m.mu.RLock()
	closed := m.closed
	_, known := m.getModelByID(modelID)
	e := m.pools[modelID]
	m.mu.RUnlock()
	switch {
	case closed:
		return ErrManagerClosed
	case !known:
		return ErrModelNotFound(modelID)
	case e == nil || e.draining:
		return invalidRequestError{msg: "model " + modelID + " is not loaded"}
	}
	if err := e.pool.SetPriority(instanceID, priority); err != nil {
		return err
	}
	m.publish("priority_set", modelID, map[string]any{"instance": instanceID, "priority": priority})
	return nil
}
