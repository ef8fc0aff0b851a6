package pattern

import jsoniter "github.com/json-iterator/go"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// patternJSON is the serializable projection of Pattern — its fields are
// private, so MarshalJSON/UnmarshalJSON bridge through this shape. Kept
// deliberately close to the in-memory layout so fromJson(toJson(p)) == p
// holds exactly (spec §8 round-trip law), overflow included.
type patternJSON struct {
	Steps        []Step         `json:"steps"`
	Overflow     []Step         `json:"overflow,omitempty"`
	Columns      []ColumnConfig `json:"columns"`
	StepsPerBeat float32        `json:"stepsPerBeat"`
}

func (p *Pattern) MarshalJSON() ([]byte, error) {
	return json.Marshal(patternJSON{
		Steps:        p.steps,
		Overflow:     p.overflow,
		Columns:      p.columns,
		StepsPerBeat: p.stepsPerBeat,
	})
}

func (p *Pattern) UnmarshalJSON(data []byte) error {
	var pj patternJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	p.steps = pj.Steps
	p.overflow = pj.Overflow
	p.columns = pj.Columns
	p.stepsPerBeat = pj.StepsPerBeat
	return nil
}

// ToJSON is an explicit alias for MarshalJSON, matching the spec's
// toJson/fromJson naming (spec §4.2, §4.4.3) for call sites that prefer
// it to the json.Marshaler interface.
func (p *Pattern) ToJSON() ([]byte, error) { return p.MarshalJSON() }

// FromJSON parses a Pattern previously produced by ToJSON.
func FromJSON(data []byte) (*Pattern, error) {
	p := &Pattern{}
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return p, nil
}
