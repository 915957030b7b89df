// Package seed holds the compiled-in default collections used on a fresh
// install, before either the cloud or the local cache has a value.
package seed

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// Source is a read-only set of default collections.
type Source struct {
	collections map[string]json.RawMessage
}

// Default returns the defaults shipped with the binary.
func Default() *Source {
	s, err := Parse(defaultSeed)
	if err != nil {
		panic(fmt.Sprintf("seed: embedded defaults: %v", err))
	}
	return s
}

// Empty returns a source without any defaults.
func Empty() *Source {
	return &Source{collections: map[string]json.RawMessage{}}
}

// Parse decodes a YAML document mapping collection keys to record lists.
func Parse(data []byte) (*Source, error) {
	var doc map[string][]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}

	s := &Source{collections: make(map[string]json.RawMessage, len(doc))}
	for key, records := range doc {
		if records == nil {
			records = []any{}
		}
		encoded, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("encode seed %s: %w", key, err)
		}
		s.collections[key] = encoded
	}
	return s, nil
}

// Lookup returns a fresh copy of the defaults for key.
func (s *Source) Lookup(key string) ([]json.RawMessage, bool) {
	raw, ok := s.collections[key]
	if !ok {
		return nil, false
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false
	}
	return records, true
}

// Keys lists the collections that have defaults.
func (s *Source) Keys() []string {
	keys := make([]string, 0, len(s.collections))
	for k := range s.collections {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
