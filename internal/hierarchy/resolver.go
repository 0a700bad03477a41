package hierarchy

import "strings"

// NameIndex maps workstream names and ids to the ids of the tasks created
// for them. Keys keep insertion order so scans are deterministic.
type NameIndex struct {
	ids  map[string]string
	keys []string
}

// NewNameIndex returns an empty index
func NewNameIndex() *NameIndex {
	return &NameIndex{ids: make(map[string]string)}
}

// Put records id under key. The first id registered for a key wins.
func (n *NameIndex) Put(key, id string) bool {
	if key == "" {
		return false
	}
	if _, exists := n.ids[key]; exists {
		return false
	}
	n.ids[key] = id
	n.keys = append(n.keys, key)
	return true
}

// Get returns the id registered under exactly key
func (n *NameIndex) Get(key string) (string, bool) {
	id, ok := n.ids[key]
	return id, ok
}

// Keys returns the registered keys in insertion order
func (n *NameIndex) Keys() []string {
	return append([]string(nil), n.keys...)
}

// Len returns the number of registered keys
func (n *NameIndex) Len() int {
	return len(n.keys)
}

// ParentResolver maps a parent reference to a created task id
type ParentResolver func(ref string, index *NameIndex) (string, bool)

// DefaultResolvers are tried in order until one resolves the reference.
var DefaultResolvers = []ParentResolver{
	DirectLookup,
	ExactScan,
	CaseInsensitiveScan,
}

// DirectLookup looks the reference up as-is
func DirectLookup(ref string, index *NameIndex) (string, bool) {
	return index.Get(ref)
}

// ExactScan walks every key and compares it to the reference with
// surrounding whitespace removed.
func ExactScan(ref string, index *NameIndex) (string, bool) {
	ref = strings.TrimSpace(ref)
	for _, key := range index.keys {
		if strings.TrimSpace(key) == ref {
			return index.ids[key], true
		}
	}
	return "", false
}

// CaseInsensitiveScan walks every key ignoring case
func CaseInsensitiveScan(ref string, index *NameIndex) (string, bool) {
	ref = strings.TrimSpace(ref)
	for _, key := range index.keys {
		if strings.EqualFold(strings.TrimSpace(key), ref) {
			return index.ids[key], true
		}
	}
	return "", false
}

// Resolve applies resolvers in order and returns the first hit
func Resolve(ref string, index *NameIndex, resolvers []ParentResolver) (string, bool) {
	if strings.TrimSpace(ref) == "" {
		return "", false
	}
	for _, r := range resolvers {
		if id, ok := r(ref, index); ok {
			return id, true
		}
	}
	return "", false
}
