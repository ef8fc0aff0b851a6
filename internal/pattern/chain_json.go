package pattern

// chainJSON is Chain's serializable projection, including the transient
// cursor — PatternRuntime.fromJson needs it to resume progression exactly
// where a prior snapshot left off.
type chainJSON struct {
	Entries       []ChainEntry `json:"entries"`
	Enabled       bool         `json:"enabled"`
	CurrentIndex  int          `json:"currentIndex"`
	CurrentRepeat int          `json:"currentRepeat"`
}

func (c *Chain) MarshalJSON() ([]byte, error) {
	return json.Marshal(chainJSON{
		Entries:       c.entries,
		Enabled:       c.enabled,
		CurrentIndex:  c.currentIndex,
		CurrentRepeat: c.currentRepeat,
	})
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var cj chainJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	c.entries = cj.Entries
	c.enabled = cj.Enabled
	c.currentIndex = cj.CurrentIndex
	c.currentRepeat = cj.CurrentRepeat
	if c.currentRepeat < 1 {
		c.currentRepeat = 1
	}
	return nil
}
