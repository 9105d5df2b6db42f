package privacy

import (
	"fmt"
	"sort"
	"strings"
)

// Map is the two-way mapping between original values and placeholders.
// The same value always maps to the same placeholder.
type Map struct {
	byOriginal    map[string]string
	byPlaceholder map[string]string
	counters      map[string]int
}

func NewMap() *Map {
	return &Map{
		byOriginal:    make(map[string]string),
		byPlaceholder: make(map[string]string),
		counters:      make(map[string]int),
	}
}

// Add returns the placeholder for original, creating [ENTITY_n] on first sight.
func (m *Map) Add(original, entity string) string {
	if p, ok := m.byOriginal[original]; ok {
		return p
	}
	m.counters[entity]++
	p := fmt.Sprintf("[%s_%d]", entity, m.counters[entity])
	m.byOriginal[original] = p
	m.byPlaceholder[p] = original
	return p
}

func (m *Map) Original(placeholder string) (string, bool) {
	v, ok := m.byPlaceholder[placeholder]
	return v, ok
}

func (m *Map) Placeholder(original string) (string, bool) {
	p, ok := m.byOriginal[original]
	return p, ok
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byOriginal)
}

// RestoreString replaces every known placeholder in s.
func (m *Map) RestoreString(s string) string {
	if m.Len() == 0 || !strings.Contains(s, "[") {
		return s
	}
	keys := make([]string, 0, len(m.byPlaceholder))
	for p := range m.byPlaceholder {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, p := range keys {
		pairs = append(pairs, p, m.byPlaceholder[p])
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
