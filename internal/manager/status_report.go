package manager

import (
	"sort"
	"time"

	"modyn/internal/instancepool"
	"modyn/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.state, Err: m.err}
	for id, e := range m.pools {
		if !e.draining && !e.warming {
			s.Loaded = append(s.Loaded, id)
		}
	}
	sort.Strings(s.Loaded)
	return s
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	resp := types.StatusResponse{
		State:          string(m.state),
		LastError:      m.err,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
		EvictionsTotal: m.evictions,
		LoadsTotal:     m.loads,
	}
	type view struct {
		e        *entry
		lastUsed time.Time
		draining bool
	}
	views := make([]view, 0, len(m.pools))
	for _, e := range m.pools {
		views = append(views, view{e: e, lastUsed: e.lastUsed, draining: e.draining})
		if e.draining {
			resp.DrainingCount++
		}
		if e.warming {
			resp.WarmupsInProgress++
		}
	}
	m.mu.RUnlock()

	resp.Pools = make([]types.PoolStatus, 0, len(views))
	for _, v := range views {
		ps := poolStatus(v.e.pool.Stats())
		ps.LastUsed = v.lastUsed.Unix()
		ps.Draining = ps.Draining || v.draining
		resp.Pools = append(resp.Pools, ps)
	}
	sort.Slice(resp.Pools, func(i, j int) bool { return resp.Pools[i].ModelID < resp.Pools[j].ModelID })

	if m.rt != nil && m.rt.Memory() != nil {
		st := m.rt.Memory().Stats()
		resp.Memory = &types.MemoryStatus{
			Total:         st.Total,
			Used:          st.Used,
			Free:          st.Free,
			Peak:          st.Peak,
			LargestFree:   st.LargestFree,
			ActiveBlocks:  st.ActiveBlocks,
			FreeBlocks:    st.FreeBlocks,
			OOMCount:      st.OOMCount,
			Fragmentation: st.Fragmentation,
		}
	}
	return resp
}

func poolStatus(st instancepool.Stats) types.PoolStatus {
	ps := types.PoolStatus{
		ModelID:       st.ModelID,
		Backend:       st.Backend,
		Strategy:      st.Strategy,
		Share:         st.Share,
		MinInstances:  st.Min,
		MaxInstances:  st.Max,
		Idle:          st.Idle,
		Busy:          st.Busy,
		Loading:       st.Loading,
		Errors:        st.Errors,
		QueueLen:      st.Waiters,
		MaxQueueDepth: st.MaxQueueDepth,
		Inferences:    st.Inferences,
		Timeouts:      st.Timeouts,
		Draining:      st.Draining,
		Instances:     make([]types.InstanceStatus, 0, len(st.Instances)),
	}
	for _, in := range st.Instances {
		ps.Instances = append(ps.Instances, types.InstanceStatus{
			ID:             in.ID,
			Status:         in.Status,
			Priority:       in.Priority,
			InferenceCount: in.InferenceCount,
			AvgLatencyMS:   float64(in.AvgLatency.Microseconds()) / 1000,
			LastUsed:       in.LastUsed.Unix(),
			WeightsShared:  in.WeightsShared,
		})
	}
	return ps
}

// Backends lists registered backends and those a plugin on the search path
// could provide.
func (m *Manager) Backends() types.BackendsResponse {
	resp := types.BackendsResponse{Backends: []types.Backend{}}
	if m.rt == nil {
		return resp
	}
	registered := map[string]bool{}
	for _, id := range m.rt.Registry().Registered() {
		registered[string(id)] = true
	}
	for _, id := range m.rt.AvailableBackends() {
		resp.Backends = append(resp.Backends, types.Backend{ID: string(id), Registered: registered[string(id)]})
	}
	return resp
}

// Plugins lists the loaded plugins.
func (m *Manager) Plugins() types.PluginsResponse {
	resp := types.PluginsResponse{Plugins: []types.Plugin{}}
	if m.rt == nil {
		return resp
	}
	for _, d := range m.rt.Loader().List() {
		p := types.Plugin{
			Name:        d.Name,
			Version:     d.Version.String(),
			Type:        d.Type.String(),
			Backend:     string(d.Backend),
			State:       d.State.String(),
			Path:        d.Path,
			Description: d.Description,
			Author:      d.Author,
			LastError:   d.LastError,
		}
		if !d.LoadedAt.IsZero() {
			p.LoadedAt = d.LoadedAt.Unix()
		}
		resp.Plugins = append(resp.Plugins, p)
	}
	return resp
}
