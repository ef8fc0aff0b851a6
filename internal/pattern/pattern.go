package pattern

import (
	"fmt"
	"sort"

	"github.com/b0yaux/enginecore/internal/enginerr"
)

// Pattern is the stateless step grid: an ordered sequence of Step, a
// column schema, and a tempo ratio (spec §3).
//
// Mutation requires external synchronisation when a Pattern is shared —
// this package itself is not safe for concurrent use; internal/runtime
// supplies the lock that guards the map of patterns it owns.
type Pattern struct {
	steps        []Step
	overflow     []Step // hidden tail, kept when StepCount shrinks, restored when it grows back
	columns      []ColumnConfig
	stepsPerBeat float32
}

// New creates a Pattern with stepCount steps (clamped to >= 1), the
// default column schema, and the given stepsPerBeat. stepsPerBeat of 0 is
// rejected (spec §3: "in [-96, 96] excluding 0").
func New(stepCount int, stepsPerBeat float32) (*Pattern, error) {
	if stepsPerBeat == 0 || stepsPerBeat < -96 || stepsPerBeat > 96 {
		return nil, enginerr.New(enginerr.InvalidArgument, "pattern.New",
			"stepsPerBeat must be in [-96,96] and non-zero")
	}
	if stepCount < 1 {
		stepCount = 1
	}
	steps := make([]Step, stepCount)
	for i := range steps {
		steps[i] = DefaultStep()
	}
	return &Pattern{
		steps:        steps,
		columns:      DefaultColumns(),
		stepsPerBeat: stepsPerBeat,
	}, nil
}

func (p *Pattern) StepCount() int { return len(p.steps) }

// StepsPerBeat returns the tempo ratio; negative means reverse playback.
func (p *Pattern) StepsPerBeat() float32 { return p.stepsPerBeat }

// SetStepsPerBeat validates and applies a new tempo ratio.
func (p *Pattern) SetStepsPerBeat(spb float32) error {
	if spb == 0 || spb < -96 || spb > 96 {
		return enginerr.New(enginerr.InvalidArgument, "Pattern.SetStepsPerBeat",
			"stepsPerBeat must be in [-96,96] and non-zero")
	}
	p.stepsPerBeat = spb
	return nil
}

// GetStep returns a copy of the step at i.
func (p *Pattern) GetStep(i int) (Step, error) {
	if i < 0 || i >= len(p.steps) {
		return Step{}, enginerr.New(enginerr.OutOfBounds, "Pattern.GetStep", fmt.Sprintf("index %d out of range [0,%d)", i, len(p.steps)))
	}
	return p.steps[i].Clone(), nil
}

// SetStep replaces the step at i. Length, ratio and chance are clamped to
// their valid ranges; callers don't need to pre-validate them.
func (p *Pattern) SetStep(i int, s Step) error {
	if i < 0 || i >= len(p.steps) {
		return enginerr.New(enginerr.OutOfBounds, "Pattern.SetStep", fmt.Sprintf("index %d out of range [0,%d)", i, len(p.steps)))
	}
	clamped := s.Clone()
	clamped.SetLength(clamped.Length)
	clamped.SetRatio(clamped.RatioA, clamped.RatioB)
	clamped.SetChance(clamped.Chance)
	p.steps[i] = clamped
	return nil
}

// Clear resets the step at i to its default (rest) value.
func (p *Pattern) Clear(i int) error {
	if i < 0 || i >= len(p.steps) {
		return enginerr.New(enginerr.OutOfBounds, "Pattern.Clear", fmt.Sprintf("index %d out of range [0,%d)", i, len(p.steps)))
	}
	p.steps[i] = DefaultStep()
	return nil
}

// Steps returns a copy of the full step slice.
func (p *Pattern) Steps() []Step {
	out := make([]Step, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Clone()
	}
	return out
}

// SetStepCount resizes the pattern. Shrinking moves the trailing steps
// into the overflow buffer (most recent shrink's tail on top); growing
// first restores from the overflow buffer before padding with default
// steps, so SetStepCount(k) then SetStepCount(oldK) restores the overflow
// steps in original order (spec §4.2, §8 boundary law).
func (p *Pattern) SetStepCount(k int) error {
	if k < 1 {
		return enginerr.New(enginerr.InvalidArgument, "Pattern.SetStepCount", "step count must be >= 1")
	}
	switch {
	case k < len(p.steps):
		hidden := p.steps[k:]
		kept := make([]Step, k)
		copy(kept, p.steps[:k])
		// Push the newly hidden tail so the most recent shrink is
		// restored first, preserving original order within that tail.
		overflow := make([]Step, 0, len(hidden)+len(p.overflow))
		overflow = append(overflow, hidden...)
		overflow = append(overflow, p.overflow...)
		p.overflow = overflow
		p.steps = kept
	case k > len(p.steps):
		need := k - len(p.steps)
		grown := make([]Step, 0, k)
		grown = append(grown, p.steps...)
		take := need
		if take > len(p.overflow) {
			take = len(p.overflow)
		}
		grown = append(grown, p.overflow[:take]...)
		p.overflow = p.overflow[take:]
		for len(grown) < k {
			grown = append(grown, DefaultStep())
		}
		p.steps = grown
	}
	return nil
}

// DoubleSteps duplicates the whole step sequence, appending the copy
// after the original (stepCount doubles).
func (p *Pattern) DoubleSteps() error {
	n := len(p.steps)
	doubled := make([]Step, 0, n*2)
	doubled = append(doubled, p.steps...)
	for _, s := range p.steps {
		doubled = append(doubled, s.Clone())
	}
	p.steps = doubled
	return nil
}

// DuplicateRange copies steps [from,to] (inclusive) to start at dest.
// Rejects an inverted range (from > to) or an out-of-bounds destination.
// Overlap between source and destination is tolerated via a temporary
// buffer, so DuplicateRange(a,b,a) is the identity (spec §4.2, §8).
func (p *Pattern) DuplicateRange(from, to, dest int) error {
	n := len(p.steps)
	if from < 0 || to < 0 || from >= n || to >= n {
		return enginerr.New(enginerr.OutOfBounds, "Pattern.DuplicateRange", "from/to out of range")
	}
	if from > to {
		return enginerr.New(enginerr.InvalidArgument, "Pattern.DuplicateRange", "inverted range: from > to")
	}
	length := to - from + 1
	if dest < 0 || dest+length > n {
		return enginerr.New(enginerr.OutOfBounds, "Pattern.DuplicateRange", "destination out of range")
	}
	buf := make([]Step, length)
	for i := 0; i < length; i++ {
		buf[i] = p.steps[from+i].Clone()
	}
	for i := 0; i < length; i++ {
		p.steps[dest+i] = buf[i]
	}
	return nil
}

// Columns returns a copy of the column schema, ordered by Order.
func (p *Pattern) Columns() []ColumnConfig {
	out := make([]ColumnConfig, len(p.columns))
	copy(out, p.columns)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (p *Pattern) columnIndex(name string) int {
	for i, c := range p.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (p *Pattern) countIndexOrNoteColumns() int {
	n := 0
	for _, c := range p.columns {
		if isIndexOrNote(c.Name) {
			n++
		}
	}
	return n
}

// renumberOrders reassigns contiguous 0..K-1 orders following the
// current sorted order, preserving relative order of ties.
func (p *Pattern) renumberOrders() {
	sort.SliceStable(p.columns, func(i, j int) bool { return p.columns[i].Order < p.columns[j].Order })
	for i := range p.columns {
		p.columns[i].Order = i
	}
}

// AddColumn appends a new column at the end of the display order.
// Duplicate names are rejected.
func (p *Pattern) AddColumn(name string, category ColumnCategory, required bool) error {
	if p.columnIndex(name) >= 0 {
		return enginerr.New(enginerr.AlreadyExists, "Pattern.AddColumn", "column \""+name+"\" already exists")
	}
	p.columns = append(p.columns, ColumnConfig{Name: name, Category: category, Required: required, Order: len(p.columns)})
	p.renumberOrders()
	return nil
}

// RemoveColumn removes a column by name. Refuses to remove a required
// column, and refuses to remove the last remaining index|note column
// (spec §4.2). Step parameter values for the removed column's name are
// left untouched in Step.Parameters — the grid only controls visibility,
// so re-adding the column restores them (spec §4.2 edge policy).
func (p *Pattern) RemoveColumn(name string) error {
	idx := p.columnIndex(name)
	if idx < 0 {
		return enginerr.New(enginerr.NotFound, "Pattern.RemoveColumn", "column \""+name+"\" not found")
	}
	if p.columns[idx].Required {
		return enginerr.New(enginerr.PreconditionFailed, "Pattern.RemoveColumn", "column \""+name+"\" is required")
	}
	if isIndexOrNote(name) && p.countIndexOrNoteColumns() <= 1 {
		return enginerr.New(enginerr.PreconditionFailed, "Pattern.RemoveColumn", "cannot remove the last index|note column")
	}
	p.columns = append(p.columns[:idx], p.columns[idx+1:]...)
	p.renumberOrders()
	return nil
}

// ReorderColumn moves a column to newOrder (clamped into range),
// shifting the others to keep a contiguous 0..K-1 permutation.
func (p *Pattern) ReorderColumn(name string, newOrder int) error {
	idx := p.columnIndex(name)
	if idx < 0 {
		return enginerr.New(enginerr.NotFound, "Pattern.ReorderColumn", "column \""+name+"\" not found")
	}
	if newOrder < 0 {
		newOrder = 0
	}
	if newOrder > len(p.columns)-1 {
		newOrder = len(p.columns) - 1
	}
	cur := p.columns[idx]
	rest := append(append([]ColumnConfig{}, p.columns[:idx]...), p.columns[idx+1:]...)
	sort.Slice(rest, func(i, j int) bool { return rest[i].Order < rest[j].Order })
	inserted := make([]ColumnConfig, 0, len(p.columns))
	inserted = append(inserted, rest[:newOrder]...)
	inserted = append(inserted, cur)
	inserted = append(inserted, rest[newOrder:]...)
	p.columns = inserted
	p.renumberOrders()
	return nil
}

// SwapColumn swaps the display order of the two columns at display
// positions i and j (0-indexed by current Order). Never touches step
// values (spec §4.2 edge policy: "swapColumnParameter never deletes step
// values; the grid only controls visibility").
func (p *Pattern) SwapColumn(i, j int) error {
	cols := p.Columns()
	if i < 0 || j < 0 || i >= len(cols) || j >= len(cols) {
		return enginerr.New(enginerr.OutOfBounds, "Pattern.SwapColumn", "column position out of range")
	}
	ni, nj := p.columnIndex(cols[i].Name), p.columnIndex(cols[j].Name)
	p.columns[ni].Order, p.columns[nj].Order = p.columns[nj].Order, p.columns[ni].Order
	return nil
}
