package pattern

import "github.com/b0yaux/enginecore/internal/enginerr"

// ChainEntry is one row of a PatternChain: a pattern name, how many
// times to play it before advancing, and whether it's skipped entirely.
type ChainEntry struct {
	PatternName string `json:"patternName"`
	RepeatCount int    `json:"repeatCount"` // >= 1
	Disabled    bool   `json:"disabled"`
}

// Chain is an ordered list of ChainEntry plus the transient cursor that
// tracks progression through it (spec §3, §4.3).
type Chain struct {
	entries []ChainEntry
	enabled bool

	currentIndex  int
	currentRepeat int // 1-indexed count of plays of the entry at currentIndex so far
}

// NewChain returns an empty, enabled chain.
func NewChain() *Chain {
	return &Chain{enabled: true, currentRepeat: 1}
}

func (c *Chain) Enabled() bool      { return c.enabled }
func (c *Chain) SetEnabled(v bool)  { c.enabled = v }
func (c *Chain) Len() int           { return len(c.entries) }
func (c *Chain) CurrentIndex() int  { return c.currentIndex }
func (c *Chain) CurrentRepeat() int { return c.currentRepeat }

// Entries returns a copy of the chain's entries.
func (c *Chain) Entries() []ChainEntry {
	out := make([]ChainEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Add appends an entry. repeatCount is clamped to >= 1.
func (c *Chain) Add(patternName string, repeatCount int, disabled bool) {
	if repeatCount < 1 {
		repeatCount = 1
	}
	c.entries = append(c.entries, ChainEntry{PatternName: patternName, RepeatCount: repeatCount, Disabled: disabled})
}

// Remove deletes the entry at index i, adjusting the cursor if needed.
func (c *Chain) Remove(i int) error {
	if i < 0 || i >= len(c.entries) {
		return enginerr.New(enginerr.OutOfBounds, "Chain.Remove", "index out of range")
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
	if c.currentIndex >= len(c.entries) {
		c.currentIndex = 0
		c.currentRepeat = 1
	}
	return nil
}

// SetEntry replaces the entry at index i.
func (c *Chain) SetEntry(i int, patternName string, repeatCount int, disabled bool) error {
	if i < 0 || i >= len(c.entries) {
		return enginerr.New(enginerr.OutOfBounds, "Chain.SetEntry", "index out of range")
	}
	if repeatCount < 1 {
		repeatCount = 1
	}
	c.entries[i] = ChainEntry{PatternName: patternName, RepeatCount: repeatCount, Disabled: disabled}
	return nil
}

// SetRepeat updates only the repeatCount of entry i.
func (c *Chain) SetRepeat(i, repeatCount int) error {
	if i < 0 || i >= len(c.entries) {
		return enginerr.New(enginerr.OutOfBounds, "Chain.SetRepeat", "index out of range")
	}
	if repeatCount < 1 {
		repeatCount = 1
	}
	c.entries[i].RepeatCount = repeatCount
	return nil
}

// SetEntryDisabled updates only the disabled flag of entry i.
func (c *Chain) SetEntryDisabled(i int, disabled bool) error {
	if i < 0 || i >= len(c.entries) {
		return enginerr.New(enginerr.OutOfBounds, "Chain.SetEntryDisabled", "index out of range")
	}
	c.entries[i].Disabled = disabled
	return nil
}

// Clear empties the chain and resets the cursor.
func (c *Chain) Clear() {
	c.entries = nil
	c.Reset()
}

// Reset zeroes the progression cursor without touching entries.
func (c *Chain) Reset() {
	c.currentIndex = 0
	c.currentRepeat = 1
}

func (c *Chain) allDisabled() bool {
	if len(c.entries) == 0 {
		return true
	}
	for _, e := range c.entries {
		if !e.Disabled {
			return false
		}
	}
	return true
}

// nextEnabledIndex finds the next non-disabled index strictly after
// `from`, wrapping around. Returns -1 if none exists.
func (c *Chain) nextEnabledIndex(from int) int {
	n := len(c.entries)
	if n == 0 {
		return -1
	}
	for step := 1; step <= n; step++ {
		idx := (from + step) % n
		if !c.entries[idx].Disabled {
			return idx
		}
	}
	return -1
}

// firstEnabledIndexFrom finds the first non-disabled index at or after
// `from` (used when the cursor itself currently sits on a disabled
// entry, e.g. right after SetEntryDisabled).
func (c *Chain) firstEnabledIndexFrom(from int) int {
	n := len(c.entries)
	for step := 0; step < n; step++ {
		idx := (from + step) % n
		if !c.entries[idx].Disabled {
			return idx
		}
	}
	return -1
}

// PeekNextPattern returns what GetNextPattern would return, without
// mutating any state (spec §4.3).
func (c *Chain) PeekNextPattern() string {
	if len(c.entries) == 0 || c.allDisabled() {
		return ""
	}
	idx := c.currentIndex
	if c.entries[idx].Disabled {
		idx = c.firstEnabledIndexFrom(idx)
		if idx < 0 {
			return ""
		}
		return c.entries[idx].PatternName
	}
	if c.currentRepeat < c.entries[idx].RepeatCount {
		return c.entries[idx].PatternName
	}
	next := c.nextEnabledIndex(idx)
	if next < 0 {
		return ""
	}
	return c.entries[next].PatternName
}

// GetNextPattern is the single state-mutating progression primitive
// (spec §4.3): if the current entry's repeatCount hasn't been reached,
// bump the repeat counter and return the current pattern; otherwise
// advance currentIndex (wrapping, skipping disabled entries) and reset
// the repeat counter to 1. Returns "" when the chain is empty or every
// entry is disabled.
func (c *Chain) GetNextPattern() string {
	if len(c.entries) == 0 || c.allDisabled() {
		return ""
	}
	if c.entries[c.currentIndex].Disabled {
		idx := c.firstEnabledIndexFrom(c.currentIndex)
		if idx < 0 {
			return ""
		}
		c.currentIndex = idx
		c.currentRepeat = 1
		return c.entries[idx].PatternName
	}
	if c.currentRepeat < c.entries[c.currentIndex].RepeatCount {
		c.currentRepeat++
		return c.entries[c.currentIndex].PatternName
	}
	next := c.nextEnabledIndex(c.currentIndex)
	if next < 0 {
		return ""
	}
	c.currentIndex = next
	c.currentRepeat = 1
	return c.entries[next].PatternName
}
