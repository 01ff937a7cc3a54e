package store

import (
	"sort"

	"proxycast-hq/flowscope/pkg/flow"
	"proxycast-hq/flowscope/pkg/flow/events"
)

// AnnotationsPatch is a partial update of a flow's operator annotations. Nil
// fields are left untouched; Tags replaces the whole tag list.
type AnnotationsPatch struct {
	Marker  *string   `json:"marker,omitempty"`
	Comment *string   `json:"comment,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`
	Starred *bool     `json:"starred,omitempty"`
}

// UpdateAnnotations applies an annotations patch to a flow in any lifecycle
// state and returns the resulting annotations.
func (s *Store) UpdateAnnotations(id string, patch AnnotationsPatch) (*flow.Annotations, error) {
	s.mu.Lock()

	record, ok := s.flows[id]
	if !ok {
		s.mu.Unlock()
		return nil, flow.NewNotFoundError(id)
	}

	if patch.Marker != nil {
		record.Annotations.Marker = *patch.Marker
	}
	if patch.Comment != nil {
		record.Annotations.Comment = *patch.Comment
	}
	if patch.Tags != nil {
		record.Annotations.Tags = append([]string{}, *patch.Tags...)
	}
	if patch.Starred != nil {
		record.Annotations.Starred = *patch.Starred
	}

	out := record.Annotations.Clone()
	s.mu.Unlock()

	s.publish(events.FlowUpdated(id, events.FlowUpdate{}))
	return &out, nil
}

// ToggleStar flips a flow's starred flag and returns the new value.
func (s *Store) ToggleStar(id string) (bool, error) {
	s.mu.Lock()

	record, ok := s.flows[id]
	if !ok {
		s.mu.Unlock()
		return false, flow.NewNotFoundError(id)
	}
	record.Annotations.Starred = !record.Annotations.Starred
	starred := record.Annotations.Starred
	s.mu.Unlock()

	s.publish(events.FlowUpdated(id, events.FlowUpdate{}))
	return starred, nil
}

// AddTags adds tags to a flow. Adding a tag the flow already carries is a
// no-op. Returns the resulting tag list.
func (s *Store) AddTags(id string, tags ...string) ([]string, error) {
	s.mu.Lock()

	record, ok := s.flows[id]
	if !ok {
		s.mu.Unlock()
		return nil, flow.NewNotFoundError(id)
	}
	for _, tag := range tags {
		record.Annotations.AddTag(tag)
	}
	out := append([]string{}, record.Annotations.Tags...)
	s.mu.Unlock()

	s.publish(events.FlowUpdated(id, events.FlowUpdate{}))
	return out, nil
}

// RemoveTags removes tags from a flow. Removing an absent tag is a no-op.
// Returns the resulting tag list.
func (s *Store) RemoveTags(id string, tags ...string) ([]string, error) {
	s.mu.Lock()

	record, ok := s.flows[id]
	if !ok {
		s.mu.Unlock()
		return nil, flow.NewNotFoundError(id)
	}
	for _, tag := range tags {
		record.Annotations.RemoveTag(tag)
	}
	out := append([]string{}, record.Annotations.Tags...)
	s.mu.Unlock()

	s.publish(events.FlowUpdated(id, events.FlowUpdate{}))
	return out, nil
}

// AllTags returns the distinct tags across all resident flows, sorted.
func (s *Store) AllTags() []string {
	s.mu.RLock()
	seen := make(map[string]bool)
	for _, record := range s.flows {
		for _, tag := range record.Annotations.Tags {
			seen[tag] = true
		}
	}
	s.mu.RUnlock()

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
