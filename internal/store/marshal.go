package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/tempodb/internal/model"
)

// marshalOperations converts validated operations to the canonical log
// payload and its digest.
func marshalOperations(ops []model.Operation) (string, string, error) {
	data, err := model.EncodeOperations(ops)
	if err != nil {
		return "", "", fmt.Errorf("marshal operations: %w", err)
	}
	return string(data), model.OperationsHash(data), nil
}

// unmarshalOperations parses a log payload, checking it against its digest
// when one is stored.
func unmarshalOperations(payload, digest string) ([]model.Operation, error) {
	if digest != "" && model.OperationsHash([]byte(payload)) != digest {
		return nil, fmt.Errorf("operations digest mismatch")
	}
	ops, err := model.DecodeOperations([]byte(payload))
	if err != nil {
		return nil, err
	}
	if ops == nil {
		ops = []model.Operation{}
	}
	return ops, nil
}

// marshalBodies collects the documents written by puts, once per content
// address, as a JSON array of canonical documents.
func marshalBodies(ops []model.Operation) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	seen := make(map[string]bool)
	for _, op := range ops {
		put, ok := op.(model.Put)
		if !ok || seen[put.DocHash] {
			continue
		}
		seen[put.DocHash] = true
		data, err := put.Document.MarshalCanonical()
		if err != nil {
			return "", fmt.Errorf("marshal bodies: %w", err)
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// unmarshalBodies parses a bodies array into a map keyed by content address.
func unmarshalBodies(data string) (map[string]model.Document, error) {
	var docs []model.Document
	if err := json.Unmarshal([]byte(data), &docs); err != nil {
		return nil, fmt.Errorf("unmarshal bodies: %w", err)
	}
	out := make(map[string]model.Document, len(docs))
	for _, doc := range docs {
		hash, err := doc.Hash()
		if err != nil {
			return nil, fmt.Errorf("unmarshal bodies: %w", err)
		}
		out[hash] = doc
	}
	return out, nil
}

// attachBodies replaces the body-less documents of decoded puts with the
// bodies found in docs.
func attachBodies(ops []model.Operation, docs map[string]model.Document) {
	for i, op := range ops {
		put, ok := op.(model.Put)
		if !ok {
			continue
		}
		if doc, ok := docs[put.DocHash]; ok {
			put.Document = doc
			ops[i] = put
		}
	}
}

// unmarshalDocument parses a stored body and verifies its content address.
func unmarshalDocument(body, hash string) (model.Document, error) {
	var doc model.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return model.Document{}, fmt.Errorf("unmarshal document %s: %w", hash, err)
	}
	got, err := doc.Hash()
	if err != nil {
		return model.Document{}, fmt.Errorf("unmarshal document %s: %w", hash, err)
	}
	if got != hash {
		return model.Document{}, fmt.Errorf("document %s: content address mismatch (got %s)", hash, got)
	}
	return doc, nil
}
