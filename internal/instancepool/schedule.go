package instancepool

import "hash/fnv"

// choose picks an idle instance by strategy. mustWait reports that the
// caller should wait rather than create an instance: a Sticky key is bound
// to a live instance that is currently busy. Pool lock held.
func (p *Pool) choose(key string) (inst *Instance, mustWait bool) {
	switch p.cfg.Strategy {
	case LeastLoaded:
		return p.leastLoaded(), false
	case Random:
		return p.random(), false
	case Priority:
		return p.highestPriority(), false
	case Sticky:
		if key != "" {
			return p.sticky(key)
		}
	}
	return p.roundRobin(), false
}

func (p *Pool) roundRobin() *Instance {
	n := len(p.instances)
	for k := 0; k < n; k++ {
		i := (p.rr + k) % n
		if p.instances[i].status == StatusIdle {
			p.rr = (i + 1) % n
			return p.instances[i]
		}
	}
	return nil
}

// leastLoaded prefers the fewest completed inferences, then the longest idle.
func (p *Pool) leastLoaded() *Instance {
	var best *Instance
	for _, in := range p.instances {
		if in.status != StatusIdle {
			continue
		}
		if best == nil || in.inferences < best.inferences ||
			(in.inferences == best.inferences && in.lastUsed.Before(best.lastUsed)) {
			best = in
		}
	}
	return best
}

func (p *Pool) random() *Instance {
	idle := p.idle()
	if len(idle) == 0 {
		return nil
	}
	return idle[p.rng.Intn(len(idle))]
}

// highestPriority breaks ties by creation order.
func (p *Pool) highestPriority() *Instance {
	var best *Instance
	for _, in := range p.instances {
		if in.status == StatusIdle && (best == nil || in.priority > best.priority) {
			best = in
		}
	}
	return best
}

// sticky returns the instance bound to key. Unbound keys hash onto the idle
// set; the binding is made when the instance is handed out.
func (p *Pool) sticky(key string) (*Instance, bool) {
	if in, ok := p.affinity[key]; ok {
		switch in.status {
		case StatusIdle:
			return in, false
		case StatusBusy, StatusLoading:
			return nil, true
		}
		delete(p.affinity, key)
	}
	idle := p.idle()
	if len(idle) == 0 {
		return nil, false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return idle[h.Sum32()%uint32(len(idle))], false
}

func (p *Pool) idle() []*Instance {
	var out []*Instance
	for _, in := range p.instances {
		if in.status == StatusIdle {
			out = append(out, in)
		}
	}
	return out
}

// bind records key's affinity under Sticky. Pool lock held.
func (p *Pool) bind(key string, inst *Instance) {
	if p.cfg.Strategy == Sticky && key != "" {
		p.affinity[key] = inst
	}
}

func (p *Pool) unbindLocked(inst *Instance) {
	for k, in := range p.affinity {
		if in == inst {
			delete(p.affinity, k)
		}
	}
}
