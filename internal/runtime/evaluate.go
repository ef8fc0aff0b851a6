package runtime

import (
	"github.com/b0yaux/enginecore/internal/pattern"
)

// reservedTriggerParameterNames are never forwarded in a TriggerEvent's
// Parameters, mirroring pattern.ReservedParameterKeys (spec §4.4.1 step 6:
// "excluding the set {index, length, note, chance, ratio}").
var reservedTriggerParameterNames = pattern.ReservedParameterKeys

// progressionKind distinguishes a deferred chain progression recorded
// during Phase 1 from the action Phase 2 takes for it.
type progressionKind int

const (
	progressionSwitch progressionKind = iota
	progressionRepeat
)

// deferredProgression is one entry of the small bounded vector Phase 1
// accumulates and Phase 2 applies under the exclusive lock (spec §4.4.1:
// "a small bounded vector of deferred chain progressions").
type deferredProgression struct {
	kind          progressionKind
	sequencerName string
	oldPattern    string
	newPattern    string
}

// Evaluate runs one audio buffer's worth of pattern advancement (spec
// §4.4.1). It must never block on a contended lock. Each call allocates
// a map of the bound patterns and the deferred-progression slice, plus
// one parameter map per fired trigger.
func (r *Runtime) Evaluate(nFrames int64) {
	clockPlaying := r.clock.IsPlaying()
	bpm := r.clock.BPM()

	var deferred []deferredProgression

	// Phase 1: read phase, shared lock.
	r.mu.RLock()
	boundPatterns := make(map[string][]string) // pattern name -> sequencer names bound to it
	for seqName, b := range r.sequencerBindings {
		if b.PatternName != "" {
			boundPatterns[b.PatternName] = append(boundPatterns[b.PatternName], seqName)
		}
	}

	for patternName, seqNames := range boundPatterns {
		p, ok := r.patterns[patternName]
		if !ok {
			continue
		}
		st, ok := r.playbackStates[patternName]
		if !ok {
			continue
		}
		if !st.IsPlaying || !clockPlaying {
			continue
		}

		samplesPerStep := r.clock.SamplesPerStep(p.StepsPerBeat())
		if samplesPerStep < 1 {
			samplesPerStep = 1
		}

		st.SampleAccumulator += float64(nFrames)
		finished := false
		for st.SampleAccumulator >= float64(samplesPerStep) {
			st.SampleAccumulator -= float64(samplesPerStep)
			wrapped := advanceStep(st, p.StepCount(), p.StepsPerBeat())
			if wrapped {
				st.PatternCycleCount++
				finished = true
			}
			r.triggerStepLocked(patternName, p, st, bpm, seqNames)
		}

		if finished {
			for _, seqName := range seqNames {
				b := r.sequencerBindings[seqName]
				if b.ChainName == "" || !b.ChainEnabled {
					continue
				}
				chain, ok := r.chains[b.ChainName]
				if !ok {
					continue
				}
				next := chain.PeekNextPattern()
				if next == "" {
					continue
				}
				if next != patternName {
					deferred = append(deferred, deferredProgression{kind: progressionSwitch, sequencerName: seqName, oldPattern: patternName, newPattern: next})
				} else {
					deferred = append(deferred, deferredProgression{kind: progressionRepeat, sequencerName: seqName, oldPattern: patternName, newPattern: next})
				}
			}
		}
	}
	r.mu.RUnlock()

	if len(deferred) == 0 {
		return
	}

	// Phase 2: apply phase, exclusive lock.
	var notifications []func()
	r.mu.Lock()
	for _, dp := range deferred {
		b, ok := r.sequencerBindings[dp.sequencerName]
		if !ok {
			continue
		}
		chain, ok := r.chains[b.ChainName]
		if !ok {
			continue
		}

		switch dp.kind {
		case progressionSwitch:
			actual := chain.GetNextPattern()
			if actual == "" {
				continue
			}
			b.PatternName = actual
			if _, ok := r.playbackStates[actual]; !ok {
				r.playbackStates[actual] = newPlaybackState()
			}
			newState := r.playbackStates[actual]
			newState.PlaybackStep = 0
			newState.SampleAccumulator = 0
			newState.PatternCycleCount = 0
			newState.CurrentPlayingStep = -1
			newState.IsPlaying = clockPlaying

			if !r.patternStillBound(dp.oldPattern, dp.sequencerName) {
				if oldState, ok := r.playbackStates[dp.oldPattern]; ok {
					oldState.CurrentPlayingStep = -1
					oldState.IsPlaying = false
				}
			}

			seqName, oldPattern, newPattern := dp.sequencerName, dp.oldPattern, actual
			notifications = append(notifications, func() {
				r.notifyBindingChange(seqName, oldPattern, newPattern)
			})

		case progressionRepeat:
			actual := chain.GetNextPattern()
			if actual != dp.newPattern {
				// concurrent edit moved the chain further than peeked;
				// treat as a switch and log the divergence at the caller.
				b.PatternName = actual
				if _, ok := r.playbackStates[actual]; !ok {
					r.playbackStates[actual] = newPlaybackState()
				}
				ns := r.playbackStates[actual]
				ns.PlaybackStep = 0
				ns.SampleAccumulator = 0
				ns.PatternCycleCount = 0
				ns.CurrentPlayingStep = -1
				ns.IsPlaying = clockPlaying

				seqName, oldPattern, newPattern := dp.sequencerName, dp.oldPattern, actual
				notifications = append(notifications, func() {
					r.notifyBindingChangeDivergence(seqName, oldPattern, newPattern)
				})
				continue
			}
			if st, ok := r.playbackStates[dp.oldPattern]; ok {
				st.PlaybackStep = 0
				st.SampleAccumulator = 0
			}
		}
	}
	r.mu.Unlock()

	for _, n := range notifications {
		n()
	}
}

// patternStillBound reports whether any sequencer other than excludeSeq
// is still bound to patternName. Caller holds the exclusive lock.
func (r *Runtime) patternStillBound(patternName, excludeSeq string) bool {
	for seqName, b := range r.sequencerBindings {
		if seqName == excludeSeq {
			continue
		}
		if b.PatternName == patternName {
			return true
		}
	}
	return false
}

func (r *Runtime) notifyBindingChange(seqName, oldPattern, newPattern string) {
	r.mu.RLock()
	handler := r.onBindingChange
	r.mu.RUnlock()
	if handler != nil {
		handler(seqName, oldPattern, newPattern)
	}
}

// notifyBindingChangeDivergence is notifyBindingChange's counterpart for
// the repeat-became-a-switch case (spec §4.4.1 Phase 2 "Repeat": "if it
// unexpectedly returns an advanced pattern ... treat as a switch and log
// a divergence warning"). Logging itself belongs to whatever collaborator
// the Engine wires as the handler; this just guarantees the notification
// still fires on divergence.
func (r *Runtime) notifyBindingChangeDivergence(seqName, oldPattern, newPattern string) {
	r.notifyBindingChange(seqName, oldPattern, newPattern)
}

// advanceStep moves playbackStep by one in the direction SPB implies,
// wrapping mod stepCount. Returns true if this step wrapped (last->first
// forward, or first->last reverse), i.e. "pattern finished" for this buffer.
func advanceStep(st *PlaybackState, stepCount int, stepsPerBeat float32) bool {
	if stepCount <= 0 {
		return false
	}
	if stepsPerBeat >= 0 {
		st.PlaybackStep++
		if st.PlaybackStep >= int32(stepCount) {
			st.PlaybackStep = 0
			return true
		}
		return false
	}
	st.PlaybackStep--
	if st.PlaybackStep < 0 {
		st.PlaybackStep = int32(stepCount - 1)
		return true
	}
	return false
}

// clearPlayingStep resets a PlaybackState's playing-step bookkeeping,
// matching the original's PatternPlaybackState::clearPlayingStep().
func clearPlayingStep(st *PlaybackState) {
	st.CurrentPlayingStep = -1
	st.StepStartTime = 0
	st.StepEndTime = 0
}

// triggerStepLocked implements triggerStep (spec §4.4.1). Caller holds
// the Phase-1 shared lock; publishTrigger itself only touches the
// independent triggerSubs lock, so firing here doesn't violate the
// "never hold PatternRuntime's lock across observer notifications" rule
// — TriggerEvent delivery is not a PatternRuntime state mutation.
func (r *Runtime) triggerStepLocked(patternName string, p *pattern.Pattern, st *PlaybackState, bpm float32, boundSequencers []string) {
	step, err := p.GetStep(int(st.PlaybackStep))
	if err != nil {
		return
	}

	if !step.HasTrigger() {
		// Empty-step policy (spec §4.4.1): a rest clears the playing step
		// only if nothing was playing; a step already playing sustains
		// until superseded by the next trigger.
		if st.CurrentPlayingStep < 0 {
			st.CurrentPlayingStep = -1
		}
		return
	}

	cycle := st.PatternCycleCount + 1
	ratioA, ratioB := clampRatio16(step.RatioA), clampRatio16(step.RatioB)
	if ((cycle-1)%ratioB)+1 != ratioA {
		clearPlayingStep(st)
		return
	}

	chance := step.Chance
	if chance < 0 {
		chance = 0
	}
	if chance > 100 {
		chance = 100
	}
	if r.rng.Intn(100) >= int(chance) {
		clearPlayingStep(st)
		return
	}

	spb := p.StepsPerBeat()
	if spb < 0 {
		spb = -spb
	}
	durationSeconds := float32(step.Length) * 60.0 / (bpm * spb)

	st.StepStartTime = 0
	st.StepEndTime = durationSeconds
	st.CurrentPlayingStep = st.PlaybackStep

	params := make(map[string]float32, len(step.Parameters)+1)
	params["note"] = float32(step.Note)
	for _, col := range p.Columns() {
		if reservedTriggerParameterNames[col.Name] {
			continue
		}
		if v, ok := step.Parameters[col.Name]; ok {
			params[col.Name] = v
		}
	}

	ev := TriggerEvent{PatternName: patternName, Step: st.PlaybackStep, Duration: durationSeconds, Parameters: params}
	for _, seqName := range boundSequencers {
		r.publishTrigger(seqName, ev)
	}
}

func clampRatio16(n int32) int32 {
	if n < 1 {
		return 1
	}
	if n > 16 {
		return 16
	}
	return n
}
