package command

import (
	"sync"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"

	"github.com/b0yaux/enginecore/internal/clock"
	"github.com/b0yaux/enginecore/internal/connection"
	"github.com/b0yaux/enginecore/internal/enginerr"
	"github.com/b0yaux/enginecore/internal/module"
	"github.com/b0yaux/enginecore/internal/router"
	"github.com/b0yaux/enginecore/internal/runtime"
	"github.com/b0yaux/enginecore/internal/state"
)

// maxObservers bounds Engine's observer list (spec §4.5 "a bounded-size
// observer list"); ScriptManager, the serializer, and telemetry each
// take one slot, leaving headroom without letting a leak grow it
// unbounded.
const maxObservers = 16

// Observer is notified with the freshly published snapshot and the delta
// against the previously published one, on whichever thread ran the
// drain that produced it (spec §4.5 "Threads").
type Observer func(snapshot state.EngineState, delta state.Delta)

// Engine owns every core collaborator and mediates all mutation through
// its command queue (spec §4.5). Exactly one goroutine may call Drain at
// a time; Enqueue is safe from any number of producer goroutines.
type Engine struct {
	Clock       *clock.Clock
	Runtime     *runtime.Runtime
	Registry    *module.Registry
	Factory     *module.Factory
	Connections *connection.Manager
	Router      *router.Router
	OSC         *osc.Client // nil if no rendering process is configured

	queue *Queue

	stateVersion atomic.Uint64
	snapshot     atomic.Pointer[state.EngineState]

	processing atomic.Bool // commandsBeingProcessed
	building   atomic.Bool // isBuildingSnapshot

	obsMu     sync.Mutex
	observers []Observer
}

// NewEngine wires the given collaborators into an Engine with a command
// queue of the given capacity, and publishes an initial empty,
// version-0 snapshot.
func NewEngine(clk *clock.Clock, rt *runtime.Runtime, reg *module.Registry, fac *module.Factory, conns *connection.Manager, rtr *router.Router, oscClient *osc.Client, queueCapacity int) *Engine {
	e := &Engine{
		Clock:       clk,
		Runtime:     rt,
		Registry:    reg,
		Factory:     fac,
		Connections: conns,
		Router:      rtr,
		OSC:         oscClient,
		queue:       NewQueue(queueCapacity),
	}
	empty := state.New()
	e.snapshot.Store(&empty)
	return e
}

// Enqueue appends cmd to the command queue. Any number of goroutines may
// call this concurrently.
func (e *Engine) Enqueue(cmd Command) error {
	return e.queue.Enqueue(cmd)
}

// Drain applies every command currently queued, advances the clock by
// nFrames, evaluates pattern playback, and — only if at least one command
// applied successfully — publishes a fresh snapshot and notifies
// observers. An empty queue never publishes: the overwhelmingly common
// case while audio is idly playing must not pay for a snapshot rebuild
// and observer fan-out on every buffer. Called once per audio buffer from
// the single consumer thread (spec §4.5, §7 "failed commands never
// corrupt the snapshot; the snapshot only advances when at least one
// command succeeded").
func (e *Engine) Drain(nFrames int64) {
	cmds := e.queue.drain()

	e.processing.Store(true)
	anySucceeded := false
	for _, cmd := range cmds {
		err := e.apply(cmd)
		if cmd.Done != nil {
			cmd.Err = err
			close(cmd.Done)
		}
		if err == nil {
			anySucceeded = true
		}
	}
	e.processing.Store(false)

	e.Clock.Tick(int(nFrames))
	e.Runtime.Evaluate(nFrames)

	if !anySucceeded {
		return
	}

	e.publishSnapshot()
}

// apply executes one command's effect against the wired collaborators.
// Held entirely on the drain thread — no lock contention with producers
// beyond what Queue.drain already resolved.
func (e *Engine) apply(cmd Command) error {
	switch cmd.Kind {
	case KindSetBPM:
		e.Clock.SetBPM(cmd.BPM)
		return nil

	case KindStartTransport:
		e.Clock.Start()
		return nil

	case KindStopTransport:
		e.Clock.Stop()
		return nil

	case KindResetTransport:
		e.Clock.Reset()
		return nil

	case KindSetParameter:
		m, err := e.Registry.ByName(cmd.ModuleName)
		if err != nil {
			return err
		}
		return m.SetParameter(cmd.ParameterName, cmd.Value, cmd.Broadcast)

	case KindAddModule:
		m, err := e.Factory.Create(cmd.TypeName, cmd.InstanceName, e.Registry.ExistingNames())
		if err != nil {
			return err
		}
		if err := m.Initialize(module.Dependencies{
			Clock:       e.Clock,
			Registry:    e.Registry,
			Connections: e.Connections,
			Router:      e.Router,
			Runtime:     e.Runtime,
			Patterns:    e.Runtime,
			OSC:         e.OSC,
			IsRestored:  false,
		}); err != nil {
			return err
		}
		return e.Registry.Add(m)

	case KindRemoveModule:
		m, err := e.Registry.ByName(cmd.ModuleName)
		if err != nil {
			return err
		}
		if err := e.Registry.Remove(m.ID()); err != nil {
			return err
		}
		e.Connections.DropModule(cmd.ModuleName)
		return nil

	case KindConnect:
		return e.Connections.Connect(connection.Info{
			Source:     cmd.SourceModule,
			Target:     cmd.TargetModule,
			Type:       connection.Type(cmd.ConnType),
			SourcePath: cmd.SourcePath,
			TargetPath: cmd.TargetPath,
			EventName:  cmd.EventName,
		})

	case KindDisconnect:
		return e.Connections.Disconnect(connection.Info{
			Source:     cmd.SourceModule,
			Target:     cmd.TargetModule,
			Type:       connection.Type(cmd.ConnType),
			SourcePath: cmd.SourcePath,
			TargetPath: cmd.TargetPath,
		})

	case KindModuleOperation:
		m, err := e.Registry.ByName(cmd.ModuleName)
		if err != nil {
			return err
		}
		op, ok := m.(interface {
			ApplyOperation(op string, args map[string]float32) error
		})
		if !ok {
			return enginerr.New(enginerr.InvalidArgument, "Engine.apply", "module does not support operations: "+cmd.ModuleName)
		}
		return op.ApplyOperation(cmd.Op, cmd.Args)

	default:
		return enginerr.New(enginerr.InvalidArgument, "Engine.apply", "unknown command kind")
	}
}

// publishSnapshot materialises a fresh EngineState from the current
// collaborator states, bumps stateVersion, swaps the atomic snapshot
// pointer, then notifies observers after the swap (spec §4.5 steps 1-3,
// "Rebuild an immutable snapshot JSON value ... Atomically publish the
// snapshot pointer").
func (e *Engine) publishSnapshot() {
	e.building.Store(true)
	next := e.buildState()
	e.building.Store(false)

	next.Version = e.stateVersion.Add(1)

	prev := e.snapshot.Load()
	e.snapshot.Store(&next)

	delta := state.Diff(*prev, next)
	e.notify(next, delta)
}

func (e *Engine) buildState() state.EngineState {
	s := state.New()
	s.Transport = state.Transport{
		IsPlaying:   e.Clock.IsPlaying(),
		BPM:         e.Clock.BPM(),
		CurrentBeat: e.Clock.CurrentBeat(),
	}
	e.Registry.ForEachModule(func(m module.Module) {
		params := make(map[string]float32)
		for _, d := range m.GetParameters() {
			if v, err := m.GetParameter(d.Name); err == nil {
				params[d.Name] = v
			}
		}
		data, _ := m.ToJSON()
		s.Modules[m.Name()] = state.ModuleState{
			UUID:             m.ID(),
			InstanceName:     m.Name(),
			TypeName:         m.TypeName(),
			Enabled:          m.Enabled(),
			Parameters:       params,
			TypeSpecificData: data,
		}
	})
	s.Connections = e.Connections.All()
	return s
}

// GetStateSnapshot returns the latest published snapshot. Lock-free and
// wait-free: a single atomic pointer load (spec §4.5).
func (e *Engine) GetStateSnapshot() state.EngineState {
	return *e.snapshot.Load()
}

// GetState is an alias for GetStateSnapshot kept distinct from it in the
// API because the spec draws the line at "may be slow; must not be
// called from the audio thread" — callers reading this code should
// reach for GetStateSnapshot on any hot path and reserve GetState for
// UI/serialization callers, even though today's implementation is
// identical (there is nothing further to materialise beyond the
// snapshot itself).
func (e *Engine) GetState() state.EngineState {
	return e.GetStateSnapshot()
}

// CommandsBeingProcessed reports whether Drain is currently applying a
// batch of commands. Observers such as ScriptManager poll this to defer
// regeneration mid-drain (spec §4.9).
func (e *Engine) CommandsBeingProcessed() bool { return e.processing.Load() }

// IsBuildingSnapshot reports whether Drain is currently materialising
// the next snapshot.
func (e *Engine) IsBuildingSnapshot() bool { return e.building.Load() }

// StateVersion returns the current published version, for callers that
// need the number without the whole snapshot.
func (e *Engine) StateVersion() uint64 { return e.stateVersion.Load() }

// Subscribe registers obs to be called after every published snapshot.
// Returns enginerr.PreconditionFailed if the observer list is already at
// capacity (spec §4.5 "a bounded-size observer list").
func (e *Engine) Subscribe(obs Observer) (func(), error) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	if len(e.observers) >= maxObservers {
		return nil, enginerr.New(enginerr.PreconditionFailed, "Engine.Subscribe", "observer list is full")
	}
	e.observers = append(e.observers, obs)
	idx := len(e.observers) - 1
	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()
		if idx < len(e.observers) {
			e.observers[idx] = nil
		}
	}, nil
}

func (e *Engine) notify(snapshot state.EngineState, delta state.Delta) {
	e.obsMu.Lock()
	obs := make([]Observer, len(e.observers))
	copy(obs, e.observers)
	e.obsMu.Unlock()
	for _, o := range obs {
		if o != nil {
			o(snapshot, delta)
		}
	}
}
