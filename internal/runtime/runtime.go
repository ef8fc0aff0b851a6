// Package runtime implements PatternRuntime (spec §4.4), the central
// real-time component: owns patterns, their transient playback state,
// pattern chains, and sequencer-to-pattern bindings behind a single
// reader-writer lock, and evaluates them once per audio buffer.
package runtime

import (
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/b0yaux/enginecore/internal/enginerr"
	"github.com/b0yaux/enginecore/internal/pattern"
)

// PlaybackState is the transient per-pattern playback cursor (spec §3
// "PatternPlaybackState (transient)"). Never shared outside Runtime.
type PlaybackState struct {
	PlaybackStep       int32
	CurrentPlayingStep int32 // -1 if silent
	IsPlaying          bool
	StepStartTime      float32
	StepEndTime        float32
	SampleAccumulator  float64
	LastBPM            float32
	PatternCycleCount  int32
	ChainName          string // "" if this pattern isn't chain-bound
}

func newPlaybackState() *PlaybackState {
	return &PlaybackState{CurrentPlayingStep: -1}
}

// Binding is a sequencer module's current pattern/chain assignment (spec
// §3 "SequencerBinding").
type Binding struct {
	PatternName  string
	ChainName    string
	ChainEnabled bool
}

// ClockReader is the slice of Clock PatternRuntime needs for evaluation:
// whether the transport is running, the current tempo, and the sample
// count one pattern step spans at that tempo (spec §4.1 SamplesPerStep,
// §4.4.1 "Compute samplesPerStep from the pattern's stepsPerBeat and
// current BPM").
type ClockReader interface {
	BPM() float32
	IsPlaying() bool
	SamplesPerStep(stepsPerBeat float32) int64
}

// TriggerEvent is the payload emitted to subscribers on every successful
// trigger (spec §6 "Trigger event payload").
type TriggerEvent struct {
	PatternName string             `json:"patternName"`
	Step        int32              `json:"step"`
	Duration    float32            `json:"duration"`
	Parameters  map[string]float32 `json:"parameters"`
}

// sequencerBindingChangeHandler is invoked after a chain-driven pattern
// switch, once the exclusive lock guarding Runtime's maps is released
// (spec §4.4.1 Phase 2: "Release lock before firing sequencerBindingChanged
// event to avoid observer-reentry deadlocks").
type sequencerBindingChangeHandler func(sequencerName, oldPattern, newPattern string)

// patternDeletedHandler is invoked before a pattern is actually erased
// (spec §4.4.2: "removePattern (emits patternDeleted before erasing,
// with the lock released during notification)").
type patternDeletedHandler func(patternName string)

// Runtime is PatternRuntime. All exported mutation methods acquire the
// lock internally; Evaluate follows the two-phase protocol from spec
// §4.4.1 directly.
type Runtime struct {
	mu sync.RWMutex

	patterns          map[string]*pattern.Pattern
	playbackStates    map[string]*PlaybackState
	chains            map[string]*pattern.Chain
	sequencerBindings map[string]*Binding

	clock ClockReader
	rng   *rand.Rand // the step-trigger chance gate's draw source (spec §8)

	patternSeq atomic.Int64
	chainSeq   atomic.Int64

	triggerSubsMu sync.RWMutex
	triggerSubs   map[string]map[int]func(TriggerEvent) // sequencerName -> subID -> callback
	triggerSubSeq atomic.Int64

	onBindingChange sequencerBindingChangeHandler
	onDeleted       patternDeletedHandler
}

// New returns an empty Runtime driven by clock, with a time-seeded chance
// gate; call SetRandSource to make it deterministic for tests or replay.
func New(clock ClockReader) *Runtime {
	return &Runtime{
		patterns:          make(map[string]*pattern.Pattern),
		playbackStates:    make(map[string]*PlaybackState),
		chains:            make(map[string]*pattern.Chain),
		sequencerBindings: make(map[string]*Binding),
		clock:             clock,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
		triggerSubs:       make(map[string]map[int]func(TriggerEvent)),
	}
}

// SetRandSource replaces the chance gate's draw source (spec §8: "chance
// gate behavior must be deterministic given a fixed RNG seed"). Callers
// must not use r concurrently with this call.
func (r *Runtime) SetRandSource(rng *rand.Rand) {
	r.mu.Lock()
	r.rng = rng
	r.mu.Unlock()
}

// SetSequencerBindingChangeHandler installs the callback fired after a
// chain-driven switch or repeat diverges into a switch.
func (r *Runtime) SetSequencerBindingChangeHandler(h func(sequencerName, oldPattern, newPattern string)) {
	r.mu.Lock()
	r.onBindingChange = h
	r.mu.Unlock()
}

// SetPatternDeletedHandler installs the callback fired before a pattern
// is erased by RemovePattern.
func (r *Runtime) SetPatternDeletedHandler(h func(patternName string)) {
	r.mu.Lock()
	r.onDeleted = h
	r.mu.Unlock()
}

// Subscribe registers fn to receive TriggerEvents for patterns bound to
// sequencerName, returning an unsubscribe function (spec §4.10 "publish/
// subscribe of TriggerEvent").
func (r *Runtime) Subscribe(sequencerName string, fn func(TriggerEvent)) func() {
	r.triggerSubsMu.Lock()
	defer r.triggerSubsMu.Unlock()
	if r.triggerSubs[sequencerName] == nil {
		r.triggerSubs[sequencerName] = make(map[int]func(TriggerEvent))
	}
	id := int(r.triggerSubSeq.Add(1))
	r.triggerSubs[sequencerName][id] = fn
	return func() {
		r.triggerSubsMu.Lock()
		defer r.triggerSubsMu.Unlock()
		delete(r.triggerSubs[sequencerName], id)
	}
}

func (r *Runtime) publishTrigger(sequencerName string, ev TriggerEvent) {
	r.triggerSubsMu.RLock()
	subs := r.triggerSubs[sequencerName]
	fns := make([]func(TriggerEvent), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	r.triggerSubsMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// NextPatternName returns a fresh, collision-free generated pattern name
// of the shape "P0", "P1", ... (spec §4.4 "atomic ID counters for
// generated names").
func (r *Runtime) NextPatternName() string {
	for {
		n := r.patternSeq.Add(1) - 1
		name := genName("P", n)
		r.mu.RLock()
		_, exists := r.patterns[name]
		r.mu.RUnlock()
		if !exists {
			return name
		}
	}
}

// NextChainName returns a fresh, collision-free generated chain name of
// the shape "chain1", "chain2", ...
func (r *Runtime) NextChainName() string {
	for {
		n := r.chainSeq.Add(1)
		name := genName("chain", n)
		r.mu.RLock()
		_, exists := r.chains[name]
		r.mu.RUnlock()
		if !exists {
			return name
		}
	}
}

func genName(prefix string, n int64) string {
	return prefix + strconv.FormatInt(n, 10)
}

// AddPattern registers p under name, creating its playback state. Fails
// with AlreadyExists if name is taken.
func (r *Runtime) AddPattern(name string, p *pattern.Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.patterns[name]; exists {
		return enginerr.New(enginerr.AlreadyExists, "Runtime.AddPattern", "pattern already exists: "+name)
	}
	r.patterns[name] = p
	r.playbackStates[name] = newPlaybackState()
	return nil
}

// UpdatePattern replaces the Pattern stored under name, leaving its
// playback state untouched. No-op-with-warning semantics for an unknown
// name are the caller's responsibility to log (spec §4.4.2); this
// returns NotFound so the caller can decide.
func (r *Runtime) UpdatePattern(name string, p *pattern.Pattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.patterns[name]; !exists {
		return enginerr.New(enginerr.NotFound, "Runtime.UpdatePattern", "unknown pattern: "+name)
	}
	r.patterns[name] = p
	return nil
}

// RemovePattern deletes a pattern, its playback state, and clears any
// sequencer binding that pointed to it. Fires patternDeleted before
// erasing, after releasing the lock (spec §4.4.2).
func (r *Runtime) RemovePattern(name string) error {
	r.mu.Lock()
	if _, exists := r.patterns[name]; !exists {
		r.mu.Unlock()
		return enginerr.New(enginerr.NotFound, "Runtime.RemovePattern", "unknown pattern: "+name)
	}
	handler := r.onDeleted
	r.mu.Unlock()

	if handler != nil {
		handler(name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.patterns, name)
	delete(r.playbackStates, name)
	for _, b := range r.sequencerBindings {
		if b.PatternName == name {
			b.PatternName = ""
		}
	}
	return nil
}

// GetPattern returns a deep copy of the named pattern (spec §4.4.2
// "snapshot copy").
func (r *Runtime) GetPattern(name string) (*pattern.Pattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patterns[name]
	if !ok {
		return nil, enginerr.New(enginerr.NotFound, "Runtime.GetPattern", "unknown pattern: "+name)
	}
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, enginerr.Wrap(enginerr.SerializationFailed, "Runtime.GetPattern", "copying pattern failed", err)
	}
	return pattern.FromJSON(data)
}

// PatternNames returns every registered pattern name.
func (r *Runtime) PatternNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.patterns))
	for name := range r.patterns {
		out = append(out, name)
	}
	return out
}

// GetPlaybackState returns a copy of the named pattern's transient state.
func (r *Runtime) GetPlaybackState(name string) (PlaybackState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.playbackStates[name]
	if !ok {
		return PlaybackState{}, enginerr.New(enginerr.NotFound, "Runtime.GetPlaybackState", "unknown pattern: "+name)
	}
	return *s, nil
}

// SetPlaying sets the isPlaying flag of the named pattern's playback
// state (the transport-level play/stop a sequencer UI issues).
func (r *Runtime) SetPlaying(name string, playing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.playbackStates[name]
	if !ok {
		return enginerr.New(enginerr.NotFound, "Runtime.SetPlaying", "unknown pattern: "+name)
	}
	s.IsPlaying = playing
	if !playing {
		s.CurrentPlayingStep = -1
	}
	return nil
}

// AddChain registers an empty chain under name.
func (r *Runtime) AddChain(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chains[name]; exists {
		return enginerr.New(enginerr.AlreadyExists, "Runtime.AddChain", "chain already exists: "+name)
	}
	r.chains[name] = pattern.NewChain()
	return nil
}

// GetChain returns the live chain for in-place edits; callers must not
// retain it past the current management-operation call.
func (r *Runtime) GetChain(name string) (*pattern.Chain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chains[name]
	if !ok {
		return nil, enginerr.New(enginerr.NotFound, "Runtime.GetChain", "unknown chain: "+name)
	}
	return c, nil
}

// ChainNames returns every registered chain name.
func (r *Runtime) ChainNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.chains))
	for name := range r.chains {
		out = append(out, name)
	}
	return out
}

// RemoveChain deletes a chain and clears any sequencer binding pointing
// to it.
func (r *Runtime) RemoveChain(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.chains[name]; !exists {
		return enginerr.New(enginerr.NotFound, "Runtime.RemoveChain", "unknown chain: "+name)
	}
	delete(r.chains, name)
	for _, b := range r.sequencerBindings {
		if b.ChainName == name {
			b.ChainName = ""
			b.ChainEnabled = false
		}
	}
	return nil
}

// BindSequencer creates or updates sequencerName's binding. patternName
// and chainName may be "" independently (spec §3 "SequencerBinding").
func (r *Runtime) BindSequencer(sequencerName, patternName, chainName string, chainEnabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if patternName != "" {
		if _, ok := r.patterns[patternName]; !ok {
			return enginerr.New(enginerr.NotFound, "Runtime.BindSequencer", "unknown pattern: "+patternName)
		}
	}
	if chainName != "" {
		if _, ok := r.chains[chainName]; !ok {
			return enginerr.New(enginerr.NotFound, "Runtime.BindSequencer", "unknown chain: "+chainName)
		}
	}
	r.sequencerBindings[sequencerName] = &Binding{PatternName: patternName, ChainName: chainName, ChainEnabled: chainEnabled}
	return nil
}

// UnbindSequencer removes sequencerName's binding entirely.
func (r *Runtime) UnbindSequencer(sequencerName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sequencerBindings, sequencerName)
}

// GetBinding returns a copy of sequencerName's binding.
func (r *Runtime) GetBinding(sequencerName string) (Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.sequencerBindings[sequencerName]
	if !ok {
		return Binding{}, enginerr.New(enginerr.NotFound, "Runtime.GetBinding", "unknown sequencer: "+sequencerName)
	}
	return *b, nil
}

// SequencerNames returns every bound sequencer name.
func (r *Runtime) SequencerNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sequencerBindings))
	for name := range r.sequencerBindings {
		out = append(out, name)
	}
	return out
}
