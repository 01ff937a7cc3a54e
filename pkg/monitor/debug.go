package monitor

// DebugInfo is the operator-facing introspection payload.
type DebugInfo struct {
	Enabled         bool     `json:"enabled"`
	ConfigEnabled   bool     `json:"config_enabled"`
	ActiveFlowCount int      `json:"active_flow_count"`
	MemoryFlowCount int      `json:"memory_flow_count"`
	MaxMemoryFlows  int      `json:"max_memory_flows"`
	MemoryFlowIDs   []string `json:"memory_flow_ids"`
	Evictions       int64    `json:"evictions"`
	Subscribers     int      `json:"subscribers"`
	DroppedEvents   int64    `json:"dropped_events"`
}

// Debug returns a snapshot of the monitor's internal state.
func (m *Monitor) Debug() DebugInfo {
	return DebugInfo{
		Enabled:         m.enabled.Load(),
		ConfigEnabled:   m.config.Enabled,
		ActiveFlowCount: m.store.ActiveCount(),
		MemoryFlowCount: m.store.Len(),
		MaxMemoryFlows:  m.store.MaxFlows(),
		MemoryFlowIDs:   m.store.IDs(),
		Evictions:       m.store.Evictions(),
		Subscribers:     m.bus.SubscriberCount(),
		DroppedEvents:   m.bus.Dropped(),
	}
}
