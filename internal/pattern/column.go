package pattern

// ColumnCategory classifies a ColumnConfig entry (spec §3).
type ColumnCategory int

const (
	Trigger ColumnCategory = iota
	Condition
	Parameter
)

func (c ColumnCategory) String() string {
	switch c {
	case Trigger:
		return "TRIGGER"
	case Condition:
		return "CONDITION"
	case Parameter:
		return "PARAMETER"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders the category by name rather than ordinal, so
// session files stay readable and stable across reorderings of the
// iota block.
func (c ColumnCategory) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON parses the category name back; unrecognised names fall
// back to Parameter rather than failing the whole session load, in
// keeping with the "best-effort mode with warnings" policy of spec §7.
func (c *ColumnCategory) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"TRIGGER"`:
		*c = Trigger
	case `"CONDITION"`:
		*c = Condition
	default:
		*c = Parameter
	}
	return nil
}

// ColumnConfig describes one column of a Pattern's display/edit grid: a
// parameter name, its category, whether it's required (non-removable),
// and its display order. Order is kept contiguous 0..K-1 by every mutator
// in this package, per spec §3's invariant.
type ColumnConfig struct {
	Name     string         `json:"name"`
	Category ColumnCategory `json:"category"`
	Required bool           `json:"required"`
	Order    int            `json:"order"`
}

// DefaultColumns returns the column schema every new Pattern starts with:
// the two always-present, non-removable TRIGGER columns (index, length),
// plus note so the "at least one index|note column" invariant holds from
// the start, plus an optional chance CONDITION column.
func DefaultColumns() []ColumnConfig {
	return []ColumnConfig{
		{Name: "index", Category: Trigger, Required: true, Order: 0},
		{Name: "length", Category: Trigger, Required: true, Order: 1},
		{Name: "note", Category: Parameter, Required: false, Order: 2},
		{Name: "chance", Category: Condition, Required: false, Order: 3},
	}
}

func isIndexOrNote(name string) bool { return name == "index" || name == "note" }
