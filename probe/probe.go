// Package probe extracts a value from a JSON document whose shape is not
// fixed, by trying an ordered list of key paths and reporting which one hit.
package probe

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Path is a sequence of object keys. A zero-length path matches a document
// that is itself a plain string.
type Path []string

// Result is the outcome of a probe. Value is meaningful only when Found.
type Result struct {
	Found bool
	Value string
	Path  Path
}

// Keys builds single-key paths for each name, followed by the same names
// nested under prefix when prefix is non-empty.
func Keys(prefix string, names ...string) []Path {
	paths := make([]Path, 0, 2*len(names))
	for _, n := range names {
		paths = append(paths, Path{n})
	}
	if prefix != "" {
		for _, n := range names {
			paths = append(paths, Path{prefix, n})
		}
	}
	return paths
}

// First walks paths in order and returns the first one that resolves to a
// non-empty string or a number. Numbers are rendered without a fractional
// part when they are integral.
func First(doc any, paths ...Path) Result {
	for _, p := range paths {
		v, ok := lookup(doc, p)
		if !ok {
			continue
		}
		if s, ok := scalar(v); ok {
			return Result{Found: true, Value: s, Path: p}
		}
	}
	return Result{}
}

// FirstRaw decodes raw as JSON and probes it. A body that is not valid JSON
// is treated as a plain string document.
func FirstRaw(raw []byte, paths ...Path) Result {
	doc, err := Decode(raw)
	if err != nil {
		return First(strings.TrimSpace(string(raw)), paths...)
	}
	return First(doc, paths...)
}

// Decode unmarshals raw into a generic document, keeping numbers exact.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func lookup(doc any, p Path) (any, bool) {
	cur := doc
	for _, key := range p {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		if x == "" {
			return "", false
		}
		return x, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return strconv.FormatInt(i, 10), true
		}
		if f, err := x.Float64(); err == nil {
			return formatFloat(f), true
		}
		return x.String(), true
	case float64:
		return formatFloat(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
