package instancepool

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"modyn/pkg/abi"
)

// CleanupIdle destroys Error records and instances idle for longer than
// IdleTimeout, never going below MinInstances live instances. It returns the
// number of records removed.
func (p *Pool) CleanupIdle() int {
	now := time.Now()
	p.mu.Lock()
	live := p.liveLocked()
	candidates := append([]*Instance(nil), p.instances...)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].lastUsed.Before(candidates[j].lastUsed) })
	removed := 0
	var engines []*Instance
	for _, in := range candidates {
		switch {
		case in.status == StatusError:
			p.removeLocked(in)
			removed++
		case in.status == StatusIdle && now.Sub(in.lastUsed) > p.cfg.IdleTimeout && live > p.cfg.MinInstances:
			p.removeLocked(in)
			engines = append(engines, in)
			live--
			removed++
		}
	}
	if removed > 0 {
		p.broadcast()
		p.publish()
	}
	p.mu.Unlock()
	for _, in := range engines {
		p.closeEngine(in.id, in.engine)
	}
	if removed > 0 {
		p.log.Info().Int("removed", removed).Msg("idle instances cleaned up")
	}
	return removed
}

// Warmup brings the pool up to MinInstances, creating the missing instances
// concurrently, then runs iterations throwaway inferences on idle instances
// that have neither been warmed nor served traffic yet. Instances whose
// warmup inference fails are replaced lazily.
func (p *Pool) Warmup(iterations int) error {
	createErr := p.Reserve(p.cfg.MinInstances)
	if IsPoolClosed(createErr) {
		return createErr
	}

	if iterations <= 0 {
		return createErr
	}
	p.mu.Lock()
	var held []*Instance
	for _, in := range p.idle() {
		if in.warmed || in.inferences > 0 {
			continue
		}
		in.status = StatusBusy
		in.warmed = true
		held = append(held, in)
	}
	p.publish()
	p.mu.Unlock()

	var wg errgroup.Group
	for _, in := range held {
		in := in
		wg.Go(func() error {
			err := warm(in.engine, iterations)
			if err != nil {
				in.failed = err
			}
			if rerr := p.Release(in); rerr != nil && err == nil {
				err = rerr
			}
			return err
		})
	}
	if err := wg.Wait(); err != nil {
		return fmt.Errorf("warmup %s: %w", p.cfg.ModelID, err)
	}
	return createErr
}

// Reserve brings the pool up to at least n live instances, capped at
// MaxInstances, creating the missing ones concurrently as Idle. It returns
// the first creation error.
func (p *Pool) Reserve(n int) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return closedError{model: p.cfg.ModelID}
	}
	if n > p.cfg.MaxInstances {
		n = p.cfg.MaxInstances
	}
	need := n - p.liveLocked()
	if need <= 0 {
		p.mu.Unlock()
		return nil
	}
	p.creating += need
	p.publish()
	p.mu.Unlock()

	var g errgroup.Group
	for i := 0; i < need; i++ {
		g.Go(func() error {
			_, err := p.spawn("", StatusIdle)
			return err
		})
	}
	return g.Wait()
}

// warm runs n inferences on zero-filled inputs shaped from the engine's
// input descriptions. Dynamic dimensions become 1.
func warm(eng abi.Engine, n int) error {
	inputs := make([]*abi.Tensor, eng.InputCount())
	for i := range inputs {
		info, err := eng.InputInfo(i)
		if err != nil {
			return err
		}
		shape := make([]int64, len(info.Shape))
		for j, d := range info.Shape {
			if d <= 0 {
				d = 1
			}
			shape[j] = d
		}
		t, err := abi.NewTensor(info.Name, info.DType, shape...)
		if err != nil {
			return err
		}
		if info.DType == abi.DTypeString {
			t.Data = []byte("warmup")
		}
		inputs[i] = t
	}
	for k := 0; k < n; k++ {
		outputs := make([]*abi.Tensor, eng.OutputCount())
		for i := range outputs {
			outputs[i] = &abi.Tensor{}
		}
		if err := eng.Infer(inputs, outputs); err != nil {
			return err
		}
	}
	return nil
}

// Healthy reports whether at least one instance is Idle or Busy and the
// number of Error records is within ErrorTolerance.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	active, failed := 0, 0
	for _, in := range p.instances {
		switch in.status {
		case StatusIdle, StatusBusy:
			active++
		case StatusError:
			failed++
		}
	}
	return !p.closed && active > 0 && failed <= p.cfg.ErrorTolerance
}

// SetPriority sets the scheduling priority of the instance with id. The
// Priority strategy prefers higher values.
func (p *Pool) SetPriority(id string, priority int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, in := range p.instances {
		if in.id == id {
			in.priority = priority
			return nil
		}
	}
	return instanceNotFoundError{model: p.cfg.ModelID, id: id}
}

// Stats is a snapshot of a pool.
type Stats struct {
	ModelID       string        `json:"model_id"`
	Backend       string        `json:"backend"`
	Strategy      string        `json:"strategy"`
	Share         string        `json:"share"`
	Min           int           `json:"min_instances"`
	Max           int           `json:"max_instances"`
	Total         int           `json:"total"`
	Idle          int           `json:"idle"`
	Busy          int           `json:"busy"`
	Loading       int           `json:"loading"`
	Errors        int           `json:"errors"`
	Waiters       int           `json:"waiters"`
	MaxQueueDepth int           `json:"max_queue_depth"`
	Created       uint64        `json:"created"`
	Destroyed     uint64        `json:"destroyed"`
	Timeouts      uint64        `json:"timeouts"`
	Inferences    uint64        `json:"inferences"`
	AvgLatency    time.Duration `json:"avg_latency"`
	WeightsRefs   int           `json:"weights_refs"`
	Draining      bool          `json:"draining"`
	Closed        bool          `json:"closed"`
	Instances     []Info        `json:"instances"`
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		ModelID:       p.cfg.ModelID,
		Backend:       string(p.cfg.Backend),
		Strategy:      p.cfg.Strategy.String(),
		Share:         p.cfg.Share.String(),
		Min:           p.cfg.MinInstances,
		Max:           p.cfg.MaxInstances,
		Loading:       p.creating,
		Waiters:       p.waiters,
		MaxQueueDepth: p.cfg.MaxQueueDepth,
		Created:       p.created,
		Destroyed:     p.destroyed,
		Timeouts:      p.timeouts,
		Draining:      p.draining,
		Closed:        p.closed,
	}
	var total time.Duration
	for _, in := range p.instances {
		s.Total++
		switch in.status {
		case StatusIdle:
			s.Idle++
		case StatusBusy:
			s.Busy++
		case StatusError:
			s.Errors++
		}
		s.Inferences += in.inferences
		total += time.Duration(in.inferences) * in.avgLatency
		s.Instances = append(s.Instances, in.info())
	}
	if s.Inferences > 0 {
		s.AvgLatency = total / time.Duration(s.Inferences)
	}
	if p.sharedWeights != nil {
		s.WeightsRefs = p.sharedWeights.RefCount()
	}
	return s
}

// Drain refuses new acquisitions, waits up to timeout for busy instances to
// be released, then closes the pool. Instances still busy at the deadline
// are destroyed when released.
func (p *Pool) Drain(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	p.mu.Lock()
	p.draining = true
	p.broadcast()
	var err error
	for p.busyLocked() > 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			err = fmt.Errorf("drain %s: %d instances still busy after %s", p.cfg.ModelID, p.busyLocked(), timeout)
			break
		}
		ch := p.notify
		p.mu.Unlock()
		t := time.NewTimer(remaining)
		select {
		case <-ch:
		case <-t.C:
		}
		t.Stop()
		p.mu.Lock()
	}
	p.mu.Unlock()
	if cerr := p.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (p *Pool) busyLocked() int {
	n := p.creating
	for _, in := range p.instances {
		if in.status == StatusBusy {
			n++
		}
	}
	return n
}

// Close destroys every idle instance and wakes all waiters. Busy instances
// are destroyed as they are released. Closing twice is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var doomed []*Instance
	for _, in := range append([]*Instance(nil), p.instances...) {
		switch in.status {
		case StatusIdle:
			p.removeLocked(in)
			doomed = append(doomed, in)
		case StatusError:
			p.removeLocked(in)
		}
	}
	p.broadcast()
	p.publish()
	p.mu.Unlock()

	var g errgroup.Group
	for _, in := range doomed {
		in := in
		g.Go(func() error { return in.engine.Close() })
	}
	err := g.Wait()
	p.log.Info().Int("closed", len(doomed)).Msg("instance pool closed")
	return err
}
