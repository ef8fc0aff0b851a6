package connection

// exportJSON is the bulk shape ToJSON/FromJSON exchange — one array per
// connection type, matching the session file's "modules.connections"
// object shape (spec §6: audioConnections, videoConnections,
// parameterConnections, eventSubscriptions).
type exportJSON struct {
	AudioConnections     []Info `json:"audioConnections,omitempty"`
	VideoConnections     []Info `json:"videoConnections,omitempty"`
	ParameterConnections []Info `json:"parameterConnections,omitempty"`
	EventSubscriptions   []Info `json:"eventSubscriptions,omitempty"`
}

// ToJSON exports every connection, partitioned by type (spec §4.7 "bulk
// JSON import/export").
func (m *Manager) ToJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(exportJSON{
		AudioConnections:     m.byType[Audio],
		VideoConnections:     m.byType[Video],
		ParameterConnections: m.byType[Parameter],
		EventSubscriptions:   m.byType[Event],
	})
}

// FromJSON replaces the manager's contents with the connections
// described by data. Malformed or missing-type connections are rejected
// via Connect's own validation on each entry, so FromJSON either loads
// fully (modulo legacy-missing-module handling by the caller) or leaves
// the prior state intact on the first error.
func (m *Manager) FromJSON(data []byte) error {
	var ej exportJSON
	if err := json.Unmarshal(data, &ej); err != nil {
		return err
	}
	fresh := NewManager()
	for _, c := range ej.AudioConnections {
		c.Type = Audio
		if err := fresh.Connect(c); err != nil {
			return err
		}
	}
	for _, c := range ej.VideoConnections {
		c.Type = Video
		if err := fresh.Connect(c); err != nil {
			return err
		}
	}
	for _, c := range ej.ParameterConnections {
		c.Type = Parameter
		if err := fresh.Connect(c); err != nil {
			return err
		}
	}
	for _, c := range ej.EventSubscriptions {
		c.Type = Event
		if err := fresh.Connect(c); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byType = fresh.byType
	return nil
}
