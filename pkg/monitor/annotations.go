package monitor

import (
	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/store"
)

// UpdateAnnotations applies an annotations patch to a flow.
func (m *Monitor) UpdateAnnotations(id string, patch store.AnnotationsPatch) (*flow.Annotations, error) {
	return m.store.UpdateAnnotations(id, patch)
}

// ToggleStar flips a flow's starred flag and returns the new value.
func (m *Monitor) ToggleStar(id string) (bool, error) {
	return m.store.ToggleStar(id)
}

// AddTags adds tags to a flow, ignoring duplicates.
func (m *Monitor) AddTags(id string, tags ...string) ([]string, error) {
	return m.store.AddTags(id, tags...)
}

// RemoveTags removes tags from a flow, ignoring absentees.
func (m *Monitor) RemoveTags(id string, tags ...string) ([]string, error) {
	return m.store.RemoveTags(id, tags...)
}

// SetComment sets a flow's comment.
func (m *Monitor) SetComment(id, comment string) (*flow.Annotations, error) {
	return m.store.UpdateAnnotations(id, store.AnnotationsPatch{Comment: &comment})
}

// SetMarker sets a flow's marker.
func (m *Monitor) SetMarker(id, marker string) (*flow.Annotations, error) {
	return m.store.UpdateAnnotations(id, store.AnnotationsPatch{Marker: &marker})
}
