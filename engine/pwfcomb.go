package engine

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/synchlab/pcomb/durability"
	"github.com/synchlab/pcomb/toggle"
)

// pwfRequestSlot is one thread's announcement slot for PWFComb. Unlike
// PBComb, the "have I been served" signal lives in the activation
// bitvector, not in this struct — this only carries the operation
// itself.
type pwfRequestSlot[S any] struct {
	arg   int64
	apply SerialFunc[S]
	valid atomic.Bool
}

// pwfRecord is one physical state copy in PWFComb's pool. Once a record
// has been published (referenced by S) its fields are never mutated
// again — the next combiner to claim this slot as its "alternate" private
// record overwrites it wholesale before it is ever CAS'd into S, so no
// synchronization is needed to read a published record's fields.
type pwfRecord[S any] struct {
	state       S
	returnValue []int64
	deactivate  *toggle.Vector
	index       *toggle.Vector
}

// PWFThreadLocal is the per-thread handle ApplyOp requires.
type PWFThreadLocal struct {
	pid      int
	division int
	backoff  *threadBackoff
}

// PWFComb is the wait-free combining engine: spec.md §4.4.
type PWFComb[S any] struct {
	cfg Config

	requests []pwfRequestSlot[S]
	records  []*pwfRecord[S]

	s atomicPointer

	activate [FADDivisions]*toggle.Vector

	flush     []atomic.Uint32
	combRound [][]atomic.Uint32

	finalPersist FinalPersistFunc
	afterPersist AfterPersistFunc

	barrier durability.Barrier
	bus     *PublishBus
	metrics *Metrics
	log     *logrus.Entry
}

// NewPWFComb constructs a PWFComb engine over an initial state value.
// Record count follows spec.md's LOCAL_POOL_SIZE*N+1: two private slots
// per thread plus the one initial slot S starts out pointing at.
func NewPWFComb[S any](cfg Config, initial S, barrier durability.Barrier) (*PWFComb[S], error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	if cfg.EngineID == "" {
		cfg.EngineID = uuid.NewString()
	}
	if barrier == nil || cfg.DisableFlush {
		barrier = durability.Dummy{}
	}

	n := cfg.NThreads
	numRecords := LocalPoolSize*n + 1

	e := &PWFComb[S]{
		cfg:      cfg,
		requests: make([]pwfRequestSlot[S], n),
		records:  make([]*pwfRecord[S], numRecords),
		flush:    make([]atomic.Uint32, n),
		barrier:  barrier,
		bus:      NewPublishBus(),
		log:      fieldLogger(nil, cfg.EngineID, "pwfcomb"),
	}
	for i := range e.records {
		e.records[i] = &pwfRecord[S]{
			returnValue: make([]int64, n),
			deactivate:  toggle.New(n),
			index:       toggle.New(n),
		}
	}
	e.records[numRecords-1].state = initial
	e.s.store(packPointer(0, numRecords-1))

	for k := 0; k < FADDivisions; k++ {
		e.activate[k] = toggle.New(n)
	}
	e.combRound = make([][]atomic.Uint32, n)
	for i := range e.combRound {
		e.combRound[i] = make([]atomic.Uint32, n)
	}

	return e, nil
}

// SetFinalPersist installs the hook run after a new record is computed
// but before it is flushed.
func (e *PWFComb[S]) SetFinalPersist(fn FinalPersistFunc) { e.finalPersist = fn }

// SetAfterPersist installs the hook run once the record and S are both
// durable.
func (e *PWFComb[S]) SetAfterPersist(fn AfterPersistFunc) { e.afterPersist = fn }

// Subscribe registers a handler invoked once per successful (or
// helper-completed) publication.
func (e *PWFComb[S]) Subscribe(h PublicationHandler) { e.bus.Subscribe(h) }

// UseMetrics attaches a Metrics collector after construction.
func (e *PWFComb[S]) UseMetrics(m *Metrics) { e.metrics = m }

// ThreadInit registers pid and assigns it a NUMA-bucket stand-in: the
// reference library picks FAD_DIVISIONS by the thread's preferred core's
// NUMA node; absent real NUMA topology, pid modulo FADDivisions spreads
// threads across banks just as evenly.
func (e *PWFComb[S]) ThreadInit(pid int) (*PWFThreadLocal, error) {
	if pid < 0 || pid >= e.cfg.NThreads {
		return nil, ErrInvalidThread
	}
	return &PWFThreadLocal{
		pid:      pid,
		division: pid % FADDivisions,
		backoff:  newThreadBackoff(e.cfg.MinBackoff, e.cfg.MaxBackoff),
	}, nil
}

// ApplyOp announces (arg, apply) and drives up to two combine attempts,
// falling back to the helper/piggyback path if both fail to publish.
func (e *PWFComb[S]) ApplyOp(ctx context.Context, tl *PWFThreadLocal, apply SerialFunc[S], arg int64) (int64, error) {
	if apply == nil {
		return 0, ErrNoApplyFunc
	}
	pid := tl.pid
	_, span := startApplySpan(ctx, e.cfg.EngineID, "pwfcomb", pid)
	defer span.End()

	if e.metrics != nil {
		e.metrics.Applies.WithLabelValues(e.cfg.EngineID, "pwfcomb").Inc()
	}

	req := &e.requests[pid]
	req.arg = arg
	req.apply = apply
	req.valid.Store(true)
	e.activate[tl.division].AtomicToggleBit(pid)

	for try := 0; try < 2; try++ {
		ret, done := e.attempt(pid, tl)
		if done {
			tl.backoff.Success()
			return ret, nil
		}
		if e.metrics != nil {
			e.metrics.CASFailures.WithLabelValues(e.cfg.EngineID, "pwfcomb").Inc()
		}
		tl.backoff.Failure()
		tl.backoff.Wait()
	}
	return e.finishViaHelper(pid), nil
}

// attempt runs a single combine attempt for pid — exactly one pass, no
// internal retry loop. done=true means ret is authoritative (already
// served, or this attempt published); done=false means either a stale
// read of S or a failed publishing CAS, and the caller (ApplyOp's
// bounded for try<2 loop) is the one that retries. Looping internally
// here instead would let a stale-S observation retry for free, outside
// the two-attempt budget spec.md's wait-freedom bound depends on.
func (e *PWFComb[S]) attempt(pid int, tl *PWFThreadLocal) (int64, bool) {
	bank := toggle.BankOf(pid)
	bit := uint(pid % 64)
	mask := uint64(1) << bit
	n := e.cfg.NThreads

	oldSP := e.s.load()
	sp := e.records[oldSP.index()]

	actCell := e.activate[tl.division].AtomicLoadCell(bank)
	deactCell := sp.deactivate.CellValue(bank)
	if e.s.load() != oldSP {
		return 0, false
	}
	if (actCell^deactCell)&mask == 0 {
		return sp.returnValue[pid], true
	}

	indexBit := 0
	if sp.index.IsSet(pid) {
		indexBit = 1
	}
	localIndex := pid*LocalPoolSize + indexBit
	newRec := e.records[localIndex]
	newRec.state = sp.state
	copy(newRec.returnValue, sp.returnValue)

	lActivate := toggle.New(n)
	for c := 0; c < lActivate.Cells(); c++ {
		var v uint64
		for k := 0; k < FADDivisions; k++ {
			v |= e.activate[k].AtomicLoadCell(c)
		}
		lActivate.SetCell(c, v)
	}

	if e.s.load() != oldSP {
		return 0, false
	}

	diffs := toggle.New(n)
	diffs.Xor(sp.deactivate, lActivate)

	served := toggle.New(n)
	for j := 0; j < n; j++ {
		if !diffs.IsSet(j) {
			continue
		}
		rj := &e.requests[j]
		if !rj.valid.Load() {
			lActivate.ReverseBit(j)
			continue
		}
		newRec.returnValue[j] = rj.apply(&newRec.state, rj.arg, j)
		served.Set(j)
	}

	newRec.deactivate = lActivate
	newIndex := toggle.New(n)
	newIndex.Copy(sp.index)
	newIndex.ReverseBit(pid)
	newRec.index = newIndex

	newSP := packPointer(oldSP.seq()+1, localIndex)

	if e.finalPersist != nil {
		e.finalPersist()
	}
	_ = e.barrier.Flush(0, 0)
	_ = e.barrier.Drain()

	old := e.flush[pid].Load()
	var persisted uint32
	if old%2 == 0 {
		persisted = old + 1
	} else {
		persisted = old + 2
	}
	e.flush[pid].Store(persisted)

	for j := 0; j < n; j++ {
		if served.IsSet(j) {
			e.combRound[pid][j].Store(persisted)
		}
	}

	if !e.s.compareAndSwap(oldSP, newSP) {
		return 0, false
	}

	_ = e.barrier.Flush(0, 0)
	_ = e.barrier.Drain()
	e.flush[pid].CompareAndSwap(persisted, persisted+1)

	if e.afterPersist != nil {
		e.afterPersist()
	}
	if e.metrics != nil {
		e.metrics.Publications.WithLabelValues(e.cfg.EngineID, "pwfcomb").Inc()
	}
	e.bus.Publish(PublicationEvent{EngineID: e.cfg.EngineID, Kind: "pwfcomb", Seq: newSP.seq(), Pid: pid})

	return newRec.returnValue[pid], true
}

// finishViaHelper runs after two failed combine attempts: some other
// combiner has certainly served pid's request by now (spec.md §4.4's
// wait-freedom bound), possibly without finishing its own durability
// barrier before this thread noticed. If so, this thread completes that
// barrier on the crashed combiner's behalf before returning.
func (e *PWFComb[S]) finishViaHelper(pid int) int64 {
	sp := e.s.load()
	owner := sp.index() / LocalPoolSize
	rec := e.records[sp.index()]

	fv := e.flush[owner].Load()
	if fv%2 == 1 && e.combRound[owner][pid].Load() == fv {
		_ = e.barrier.Flush(0, 0)
		_ = e.barrier.Drain()
		e.flush[owner].CompareAndSwap(fv, fv+1)
		if e.metrics != nil {
			e.metrics.Publications.WithLabelValues(e.cfg.EngineID, "pwfcomb").Inc()
		}
		e.bus.Publish(PublicationEvent{EngineID: e.cfg.EngineID, Kind: "pwfcomb", Seq: sp.seq(), Pid: pid})
	}
	return rec.returnValue[pid]
}

// State returns a copy of the currently published state.
func (e *PWFComb[S]) State() S {
	return e.records[e.s.load().index()].state
}

// Seq returns the current versioned pointer's sequence number, the
// quantity a durability witness records as "last seen durable".
func (e *PWFComb[S]) Seq() uint64 {
	return e.s.load().seq()
}

// EngineID returns the configured (or generated) identifier for this
// engine instance, satisfying httpstatus.StatusProvider.
func (e *PWFComb[S]) EngineID() string {
	return e.cfg.EngineID
}
