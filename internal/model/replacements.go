package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Replacement is a single literal old → new edit.
type Replacement struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Replacements is the ordered list of edits for one submission. Order is
// load-bearing: pairs are applied one after another against the mutated page.
type Replacements []Replacement

// ErrReplacementsNotObject is wrapped by ParseReplacements when the payload
// is not a JSON object of string values.
var ErrReplacementsNotObject = errors.New("replacements must be a JSON object of string to string")

// ParseReplacements decodes a JSON object into Replacements, keeping the key
// order of the document. A repeated key keeps its first position and takes the
// last value.
func ParseReplacements(raw []byte) (Replacements, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReplacementsNotObject, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrReplacementsNotObject
	}
	out := Replacements{}
	index := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReplacementsNotObject, err)
		}
		key, _ := keyTok.(string)
		valTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReplacementsNotObject, err)
		}
		val, ok := valTok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q is not a string", ErrReplacementsNotObject, key)
		}
		if i, seen := index[key]; seen {
			out[i].New = val
			continue
		}
		index[key] = len(out)
		out = append(out, Replacement{Old: key, New: val})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReplacementsNotObject, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data", ErrReplacementsNotObject)
	}
	return out, nil
}

// ObjectJSON encodes r as a JSON object whose key order is the pair order,
// the inverse of ParseReplacements.
func (r Replacements) ObjectJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, pair := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(pair.Old)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(pair.New)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
