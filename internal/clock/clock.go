// Package clock implements the sample-accurate transport owned by the
// audio thread (spec §3, §4.1).
//
// Clock is mutated only from the audio thread, except SetBPM which is
// also reachable via a command (the Engine drain applies it before
// calling Tick, so the effect is observed on the very next buffer —
// "applied next buffer" per spec §4.1).
package clock

import "math"

// Bounds on BPM, matching the range trackers in this lineage have always
// clamped to (collidertracker's UI never lets the user type outside it).
const (
	MinBPM = 20.0
	MaxBPM = 999.0
)

// Clock owns sample rate, BPM, transport state and the cumulative beat
// counter. All fields are touched only from the audio thread.
type Clock struct {
	sampleRate float64
	bpm        float32
	playing    bool

	cumulativeBeats float64 // fractional beats since last reset/start
	beatPulse       float32 // 1.0 at a beat boundary, decays linearly over one beat
	pulseDecayRate  float32 // pulse decrement per sample, recomputed when bpm/sampleRate change

	samplesIntoBeat float64 // position within the current beat, in samples
}

// New returns a Clock at the given sample rate and an initial BPM. An
// invalid sample rate (<= 0) produces a Clock whose Tick is permanently
// a no-op, per spec §4.1's failure policy.
func New(sampleRate float64, bpm float32) *Clock {
	c := &Clock{sampleRate: sampleRate, bpm: clampBPM(bpm)}
	c.recomputeDecayRate()
	return c
}

func clampBPM(bpm float32) float32 {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

func (c *Clock) recomputeDecayRate() {
	if c.sampleRate <= 0 || c.bpm <= 0 {
		c.pulseDecayRate = 0
		return
	}
	samplesPerBeat := 60.0 / float64(c.bpm) * c.sampleRate
	if samplesPerBeat <= 0 {
		c.pulseDecayRate = 0
		return
	}
	c.pulseDecayRate = float32(1.0 / samplesPerBeat)
}

// Valid reports whether the clock can advance at all.
func (c *Clock) Valid() bool { return c.sampleRate > 0 }

// Tick advances the clock by nFrames samples. A no-op if the clock is
// invalid. While stopped only the beat pulse keeps decaying — cumulative
// beats only advance while playing.
func (c *Clock) Tick(nFrames int) {
	if !c.Valid() || nFrames <= 0 {
		return
	}
	if c.beatPulse > 0 {
		c.beatPulse -= c.pulseDecayRate * float32(nFrames)
		if c.beatPulse < 0 {
			c.beatPulse = 0
		}
	}
	if !c.playing {
		return
	}

	c.samplesIntoBeat += float64(nFrames)
	samplesPerBeat := 60.0 / float64(c.bpm) * c.sampleRate
	if samplesPerBeat <= 0 {
		return
	}
	for c.samplesIntoBeat >= samplesPerBeat {
		c.samplesIntoBeat -= samplesPerBeat
		c.cumulativeBeats += 1
		c.beatPulse = 1.0
	}
}

// SetBPM clamps and applies a new BPM. Per spec §4.1 this is the one
// clock mutation also reachable from a command; Engine applies it
// during the drain, strictly before the Tick/evaluate phase of the same
// buffer, so "applied next buffer" holds without any extra bookkeeping
// here.
func (c *Clock) SetBPM(bpm float32) {
	c.bpm = clampBPM(bpm)
	c.recomputeDecayRate()
}

// BPM returns the current BPM.
func (c *Clock) BPM() float32 { return c.bpm }

// Start/Stop/Reset are idempotent per spec §4.1.
func (c *Clock) Start() { c.playing = true }
func (c *Clock) Stop()  { c.playing = false }
func (c *Clock) Reset() {
	c.cumulativeBeats = 0
	c.samplesIntoBeat = 0
	c.beatPulse = 0
}

func (c *Clock) IsPlaying() bool { return c.playing }

// CurrentBeat returns the cumulative beat counter, truncated to an
// integer for the EngineState transport projection (spec §3's
// `currentBeat`); fractional position within the beat is recoverable
// from BeatPulse for UI-only smoothing.
func (c *Clock) CurrentBeat() int64 { return int64(math.Floor(c.cumulativeBeats)) }

// BeatPulse returns the current beat-flash envelope in [0,1], 1.0 right
// at a beat boundary and decaying linearly to 0 over the following beat.
func (c *Clock) BeatPulse() float32 { return c.beatPulse }

// SamplesPerStep computes samples-per-step from this clock's BPM and the
// pattern's stepsPerBeat, per spec §4.1:
// samplesPerStep = max(1, round(60 / (bpm * |spb|) * sampleRate)).
// A zero stepsPerBeat is invalid (spec §3 excludes 0 from the pattern's
// range) and yields 1 to keep evaluation from dividing by zero; callers
// should reject zero stepsPerBeat at the Pattern boundary instead.
func (c *Clock) SamplesPerStep(stepsPerBeat float32) int64 {
	spb := math.Abs(float64(stepsPerBeat))
	if spb == 0 {
		return 1
	}
	n := math.Round(60.0 / (float64(c.bpm) * spb) * c.sampleRate)
	if n < 1 {
		return 1
	}
	return int64(n)
}

// Reverse reports whether stepsPerBeat selects reverse playback.
func Reverse(stepsPerBeat float32) bool { return stepsPerBeat < 0 }
