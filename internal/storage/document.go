package storage

import (
	"bytes"
	"encoding/json"
)

// Field is one key/value pair of a Document.
type Field struct {
	Key   string
	Value string
}

// Document is an ordered set of string fields. Key order is the field list
// order of the source table; values are never coerced.
type Document []Field

// NewDocument pairs keys with values positionally. Missing values are "".
// When ignoreBlanks is set, empty values are omitted.
func NewDocument(keys []string, values []string, ignoreBlanks bool) Document {
	doc := make(Document, 0, len(keys))
	for i, k := range keys {
		var v string
		if i < len(values) {
			v = values[i]
		}
		if ignoreBlanks && v == "" {
			continue
		}
		doc = append(doc, Field{Key: k, Value: v})
	}
	return doc
}

// Get returns the value of key and whether it is present.
func (d Document) Get(key string) (string, bool) {
	for _, f := range d {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Keys returns the document keys in order.
func (d Document) Keys() []string {
	out := make([]string, len(d))
	for i, f := range d {
		out[i] = f.Key
	}
	return out
}

// MarshalJSON encodes the document as a JSON object preserving key order.
func (d Document) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object of strings, preserving key order.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return err
	}
	var out Document
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		var v string
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out = append(out, Field{Key: kt.(string), Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}
