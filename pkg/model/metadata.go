package model

import "fmt"

// Entry is one metadata name/value pair. Preserve asks consumers to keep
// the entry even when they would drop metadata they do not understand.
type Entry struct {
	Name     string
	Value    string
	Type     string
	Preserve bool
}

// Metadata is an ordered set of entries with conflict-aware merging. When
// two sources disagree on a value, the key is tombstoned: neither value is
// kept and later attempts to set the key are refused. This keeps merges of
// several documents order-independent in what they drop.
type Metadata struct {
	entries map[string]*Entry
	order   []string
}

// NewMetadata returns an empty metadata set.
func NewMetadata() *Metadata {
	return &Metadata{entries: make(map[string]*Entry)}
}

// Store merges one entry into the set. It returns a warning string when the
// entry conflicts with an existing value and the key is dropped, empty
// otherwise.
func (m *Metadata) Store(e Entry) string {
	existing, seen := m.entries[e.Name]
	if !seen {
		entry := e
		m.entries[e.Name] = &entry
		m.order = append(m.order, e.Name)
		return ""
	}
	if existing != nil && existing.Value == e.Value && existing.Type == e.Type {
		existing.Preserve = existing.Preserve || e.Preserve
		return ""
	}
	m.entries[e.Name] = nil // tombstone, the key stays blocked
	return fmt.Sprintf("conflicting values for metadata %q, dropping the entry", e.Name)
}

// Get returns the entry for a name. A tombstoned or absent name reports
// false.
func (m *Metadata) Get(name string) (Entry, bool) {
	if e := m.entries[name]; e != nil {
		return *e, true
	}
	return Entry{}, false
}

// Delete removes a name entirely, clearing any tombstone so the name can be
// stored again.
func (m *Metadata) Delete(name string) {
	if _, seen := m.entries[name]; !seen {
		return
	}
	delete(m.entries, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Entries returns the live entries in insertion order, skipping tombstones.
func (m *Metadata) Entries() []Entry {
	result := make([]Entry, 0, len(m.order))
	for _, name := range m.order {
		if e := m.entries[name]; e != nil {
			result = append(result, *e)
		}
	}
	return result
}

// Len counts the live entries.
func (m *Metadata) Len() int {
	n := 0
	for _, e := range m.entries {
		if e != nil {
			n++
		}
	}
	return n
}

// Merge stores every live entry of other into m, collecting the warnings.
func (m *Metadata) Merge(other *Metadata) []string {
	var warnings []string
	for _, e := range other.Entries() {
		if w := m.Store(e); w != "" {
			warnings = append(warnings, w)
		}
	}
	return warnings
}
