package instancepool

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modyn/internal/memory"
	"modyn/pkg/abi"
)

// Pool is a bounded set of engine instances for one model.
type Pool struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	instances []*Instance // creation order
	creating  int
	waiters   int
	notify    chan struct{}

	rr       int
	rng      *rand.Rand
	affinity map[string]*Instance

	weightsSize   int
	sharedWeights *memory.Handle
	sharedScratch *memory.Handle
	sharedLen     int

	closed   bool
	draining bool

	created   uint64
	destroyed uint64
	timeouts  uint64
}

// New validates cfg and returns an empty pool. Instances are created lazily
// by Acquire, or eagerly by Warmup.
func New(cfg Config) (*Pool, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	p := &Pool{
		cfg:      cfg,
		log:      zerolog.Nop(),
		notify:   make(chan struct{}),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		affinity: make(map[string]*Instance),
	}
	if cfg.Logger != nil {
		p.log = cfg.Logger.With().Str("model", cfg.ModelID).Str("backend", string(cfg.Backend)).Logger()
	}
	p.weightsSize = cfg.WeightsSize
	if p.weightsSize == 0 && cfg.Memory != nil && cfg.ModelPath != "" {
		if fi, err := os.Stat(cfg.ModelPath); err == nil && fi.Mode().IsRegular() {
			p.weightsSize = int(fi.Size())
		}
	}
	return p, nil
}

// ModelID returns the model this pool serves.
func (p *Pool) ModelID() string { return p.cfg.ModelID }

// Acquire is AcquireKey without an affinity key.
func (p *Pool) Acquire(timeout time.Duration) (*Instance, error) {
	return p.AcquireKey("", timeout)
}

// AcquireKey returns a Busy instance. An idle instance is chosen by the
// pool's strategy (key feeds Sticky); otherwise a new instance is created if
// the pool is below MaxInstances; otherwise the caller waits up to timeout
// (the configured AcquireTimeout when zero) for a Release. A negative timeout
// never waits.
func (p *Pool) AcquireKey(key string, timeout time.Duration) (*Instance, error) {
	if timeout == 0 {
		timeout = p.cfg.AcquireTimeout
	}
	start := time.Now()
	inst, err := p.acquire(key, start.Add(timeout), timeout)
	acquireWait.WithLabelValues(p.cfg.ModelID).Observe(time.Since(start).Seconds())
	result := "ok"
	switch {
	case err == nil:
	case IsTimeout(err):
		result = "timeout"
	case IsQueueFull(err):
		result = "queue_full"
	default:
		result = "error"
	}
	acquireTotal.WithLabelValues(p.cfg.ModelID, result).Inc()
	return inst, err
}

func (p *Pool) acquire(key string, deadline time.Time, timeout time.Duration) (*Instance, error) {
	p.mu.Lock()
	waiting := false
	leave := func() {
		if waiting {
			p.waiters--
			waiting = false
		}
	}
	for {
		if p.closed {
			leave()
			p.mu.Unlock()
			return nil, closedError{model: p.cfg.ModelID}
		}
		if p.draining {
			leave()
			p.mu.Unlock()
			return nil, drainingError{model: p.cfg.ModelID}
		}
		inst, mustWait := p.choose(key)
		if inst != nil {
			leave()
			inst.status = StatusBusy
			inst.lastUsed = time.Now()
			p.bind(key, inst)
			p.publish()
			p.mu.Unlock()
			return inst, nil
		}
		if !mustWait && p.liveLocked() < p.cfg.MaxInstances {
			leave()
			p.creating++
			p.publish()
			p.mu.Unlock()
			return p.spawn(key, StatusBusy)
		}
		if !waiting {
			if p.waiters >= p.cfg.MaxQueueDepth {
				p.mu.Unlock()
				return nil, queueFullError{model: p.cfg.ModelID, depth: p.waiters}
			}
			p.waiters++
			waiting = true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			leave()
			p.timeouts++
			p.mu.Unlock()
			return nil, timeoutError{model: p.cfg.ModelID, after: timeout}
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
}

// Release returns a Busy instance to the pool, folding its inference count
// and latency into the running average. An instance whose engine failed is
// torn down and left as an Error record until CleanupIdle.
func (p *Pool) Release(inst *Instance) error {
	if inst == nil || inst.pool != p {
		return ErrNotBusy
	}
	p.mu.Lock()
	if inst.status != StatusBusy {
		p.mu.Unlock()
		return ErrNotBusy
	}
	inst.settle()
	inst.lastUsed = time.Now()
	var doomed abi.Engine
	switch {
	case p.closed:
		p.removeLocked(inst)
		doomed = inst.engine
	case inst.failed != nil:
		p.log.Warn().Err(inst.failed).Str("instance", inst.id).Msg("instance failed; replacing")
		inst.failed = nil
		inst.status = StatusError
		p.detachLocked(inst)
		p.unbindLocked(inst)
		doomed = inst.engine
	default:
		inst.status = StatusIdle
	}
	p.broadcast()
	p.publish()
	p.mu.Unlock()
	if doomed != nil {
		p.closeEngine(inst.id, doomed)
	}
	return nil
}

// Infer acquires an instance, runs one inference and releases it.
func (p *Pool) Infer(key string, timeout time.Duration, inputs, outputs []*abi.Tensor) error {
	inst, err := p.AcquireKey(key, timeout)
	if err != nil {
		return err
	}
	ierr := inst.Infer(inputs, outputs)
	if err := p.Release(inst); err != nil && ierr == nil {
		return err
	}
	return ierr
}

// spawn creates, loads and registers one instance. The caller has already
// reserved a creation slot (p.creating).
func (p *Pool) spawn(key string, initial Status) (*Instance, error) {
	inst := &Instance{id: uuid.NewString(), pool: p, status: StatusLoading, createdAt: time.Now()}
	log := p.log.With().Str("instance", inst.id).Logger()

	eng, err := p.cfg.Creator.CreateEngine(p.cfg.Backend, p.engineConfig())
	if err != nil {
		return nil, p.abortSpawn(inst, fmt.Errorf("create engine for %s: %w", p.cfg.ModelID, err))
	}
	inst.engine = eng

	p.mu.Lock()
	err = p.attachLocked(inst)
	p.mu.Unlock()
	if err != nil {
		p.closeEngine(inst.id, eng)
		return nil, p.abortSpawn(inst, err)
	}

	var data []byte
	if inst.weights != nil {
		if data, err = inst.weightsData(); err != nil {
			p.closeEngine(inst.id, eng)
			p.mu.Lock()
			p.detachLocked(inst)
			p.mu.Unlock()
			return nil, p.abortSpawn(inst, fmt.Errorf("weights of %s: %w", p.cfg.ModelID, err))
		}
	} else if p.cfg.Memory == nil && p.cfg.ModelPath != "" {
		if b, err := os.ReadFile(p.cfg.ModelPath); err == nil {
			data = b
		}
	}
	if err := eng.LoadModel(p.cfg.ModelPath, data); err != nil {
		p.closeEngine(inst.id, eng)
		p.mu.Lock()
		p.detachLocked(inst)
		p.mu.Unlock()
		return nil, p.abortSpawn(inst, fmt.Errorf("load %s: %w", p.cfg.ModelID, err))
	}
	if n := p.cfg.WarmupIterations; n > 0 {
		inst.warmed = true
		if err := warm(eng, n); err != nil {
			log.Warn().Err(err).Msg("warmup failed")
		}
	}

	p.mu.Lock()
	p.creating--
	if p.closed {
		p.detachLocked(inst)
		p.broadcast()
		p.publish()
		p.mu.Unlock()
		p.closeEngine(inst.id, eng)
		return nil, closedError{model: p.cfg.ModelID}
	}
	inst.status = initial
	inst.lastUsed = time.Now()
	p.instances = append(p.instances, inst)
	p.created++
	if initial == StatusBusy {
		p.bind(key, inst)
	} else {
		p.broadcast()
	}
	p.publish()
	p.mu.Unlock()
	log.Info().Dur("dur", time.Since(inst.createdAt)).Msg("instance created")
	return inst, nil
}

func (p *Pool) abortSpawn(inst *Instance, err error) error {
	p.mu.Lock()
	p.creating--
	p.broadcast()
	p.publish()
	p.mu.Unlock()
	p.log.Warn().Err(err).Str("instance", inst.id).Msg("instance creation failed")
	return err
}

func (p *Pool) engineConfig() *abi.EngineConfig {
	c := p.cfg.Engine
	if p.cfg.Engine.Options != nil {
		c.Options = make(map[string]string, len(p.cfg.Engine.Options))
		for k, v := range p.cfg.Engine.Options {
			c.Options[k] = v
		}
	}
	return &c
}

// attachLocked gives inst its weights and scratch blocks, sharing according
// to the pool's ShareType. Pool lock held; calls into the memory pool.
func (p *Pool) attachLocked(inst *Instance) error {
	mp := p.cfg.Memory
	if mp == nil {
		return nil
	}
	share := p.cfg.Share
	if p.weightsSize > 0 {
		if share.sharesWeights() && p.sharedWeights != nil {
			if err := mp.Ref(p.sharedWeights); err != nil {
				return fmt.Errorf("share weights of %s: %w", p.cfg.ModelID, err)
			}
			inst.weights = p.sharedWeights
			inst.weightsLen = p.sharedLen
		} else {
			h, err := mp.Alloc(p.weightsSize, 0, p.cfg.ModelID+"/weights")
			if err != nil {
				return fmt.Errorf("allocate weights for %s: %w", p.cfg.ModelID, err)
			}
			n, err := p.fillWeights(h.Bytes())
			if err != nil {
				_ = mp.Free(h)
				return fmt.Errorf("read weights for %s: %w", p.cfg.ModelID, err)
			}
			inst.weights, inst.weightsLen = h, n
			if share.sharesWeights() {
				p.sharedWeights, p.sharedLen = h, n
			}
		}
	}
	if p.cfg.PrivateSize > 0 {
		if share.sharesScratch() && p.sharedScratch != nil {
			if err := mp.Ref(p.sharedScratch); err != nil {
				p.detachLocked(inst)
				return fmt.Errorf("share scratch of %s: %w", p.cfg.ModelID, err)
			}
			inst.scratch = p.sharedScratch
		} else {
			h, err := mp.Alloc(p.cfg.PrivateSize, 0, p.cfg.ModelID+"/scratch")
			if err != nil {
				p.detachLocked(inst)
				return fmt.Errorf("allocate scratch for %s: %w", p.cfg.ModelID, err)
			}
			inst.scratch = h
			if share.sharesScratch() {
				p.sharedScratch = h
			}
		}
	}
	return nil
}

// fillWeights copies the model file into buf and returns the bytes read. A
// missing file leaves buf zeroed.
func (p *Pool) fillWeights(buf []byte) (int, error) {
	if p.cfg.ModelPath == "" {
		return 0, nil
	}
	f, err := os.Open(p.cfg.ModelPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()
	n, err := io.ReadFull(f, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// detachLocked drops inst's references to its memory blocks. A shared block
// is freed by the memory pool once its last holder lets go.
func (p *Pool) detachLocked(inst *Instance) {
	mp := p.cfg.Memory
	if mp == nil {
		return
	}
	if inst.weights != nil {
		if err := mp.Free(inst.weights); err != nil {
			p.log.Warn().Err(err).Str("instance", inst.id).Msg("free weights")
		}
		if inst.weights == p.sharedWeights && !p.sharedWeights.Valid() {
			p.sharedWeights, p.sharedLen = nil, 0
		}
		inst.weights, inst.weightsLen = nil, 0
	}
	if inst.scratch != nil {
		if err := mp.Free(inst.scratch); err != nil {
			p.log.Warn().Err(err).Str("instance", inst.id).Msg("free scratch")
		}
		if inst.scratch == p.sharedScratch && !p.sharedScratch.Valid() {
			p.sharedScratch = nil
		}
		inst.scratch = nil
	}
}

// removeLocked drops inst from the pool and releases its memory. The caller
// closes the engine outside the lock.
func (p *Pool) removeLocked(inst *Instance) {
	for i, in := range p.instances {
		if in == inst {
			p.instances = append(p.instances[:i], p.instances[i+1:]...)
			break
		}
	}
	p.detachLocked(inst)
	p.unbindLocked(inst)
	inst.status = StatusUnloaded
	p.destroyed++
}

func (p *Pool) closeEngine(id string, eng abi.Engine) {
	if err := eng.Close(); err != nil {
		p.log.Warn().Err(err).Str("instance", id).Msg("engine close")
	}
}

// liveLocked counts instances that occupy capacity: everything except Error
// records, plus creations in flight.
func (p *Pool) liveLocked() int {
	n := p.creating
	for _, in := range p.instances {
		if in.status != StatusError {
			n++
		}
	}
	return n
}

// broadcast wakes every waiter. Pool lock held.
func (p *Pool) broadcast() {
	close(p.notify)
	p.notify = make(chan struct{})
}
