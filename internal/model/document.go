package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is an immutable attribute map with a stable identity key.
// Identity survives across versions; the body is addressed by Hash.
type Document struct {
	ID    string
	Attrs Object
}

// NewDocument builds a document from plain Go attribute values.
func NewDocument(id string, attrs map[string]any) (Document, error) {
	obj, err := ObjectFromMap(attrs)
	if err != nil {
		return Document{}, fmt.Errorf("document %q: %w", id, err)
	}
	return Document{ID: id, Attrs: obj}, nil
}

// MustDocument is like NewDocument but panics on error. Intended for tests.
func MustDocument(id string, attrs map[string]any) Document {
	d, err := NewDocument(id, attrs)
	if err != nil {
		panic(err)
	}
	return d
}

// Validate checks the identity key and every attribute value kind.
func (d Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document id is empty")
	}
	if err := validateID(d.ID); err != nil {
		return err
	}
	if err := validateValue(d.Attrs); err != nil {
		return fmt.Errorf("document %q: %w", d.ID, err)
	}
	return nil
}

// Get returns the named attribute.
func (d Document) Get(attr string) (Value, bool) {
	v, ok := d.Attrs[attr]
	return v, ok
}

// MarshalCanonical encodes the document as {"attrs":{...},"id":"..."}.
func (d Document) MarshalCanonical() ([]byte, error) {
	attrs := d.Attrs
	if attrs == nil {
		attrs = Object{}
	}
	return MarshalCanonical(Object{
		"attrs": attrs,
		"id":    String(d.ID),
	})
}

// Hash returns the document's content address.
func (d Document) Hash() (string, error) {
	return DocumentHash(d)
}

// Equal reports structural equality over identity and all attributes.
func (d Document) Equal(other Document) bool {
	a, errA := d.MarshalCanonical()
	b, errB := other.MarshalCanonical()
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// MarshalJSON implements json.Marshaler using the canonical form.
func (d Document) MarshalJSON() ([]byte, error) {
	return d.MarshalCanonical()
}

// UnmarshalJSON implements json.Unmarshaler for the canonical form.
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID    string `json:"id"`
		Attrs Object `json:"attrs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal document: %w", err)
	}
	d.ID = raw.ID
	d.Attrs = raw.Attrs
	if d.Attrs == nil {
		d.Attrs = Object{}
	}
	return nil
}
