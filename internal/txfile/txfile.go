// Package txfile loads transactions from YAML, JSON and CUE files.
//
// All three formats share one shape:
//
//	operations:
//	  - {op: put, id: pablo, attrs: {name: Pablo}, valid_from: "2000-01-01T01:00:00Z"}
//	  - {op: match, id: pablo, expected: {name: Pablo}}
//	  - {op: match-not-exists, id: sofia}
//	  - {op: delete, id: pablo, valid_from: "2000-01-01T03:00:00Z"}
//	  - {op: evict, id: pablo}
//
// A match without expected matches absence. Omitted times take the engine
// defaults. CUE files are unified with an embedded schema before decoding.
package txfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/tempodb/internal/model"
)

//go:embed schema.cue
var schemaSource []byte

// Format identifies a transaction file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported transaction file extension %q", filepath.Ext(path))
	}
}

// Load reads and decodes the transaction file at path.
func Load(path string) ([]model.Operation, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read transaction file: %w", err)
	}
	ops, err := Parse(data, format, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ops, nil
}

// Parse decodes data in the given format. name labels CUE error positions.
func Parse(data []byte, format Format, name string) ([]model.Operation, error) {
	var root any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatJSON:
		if err := decodeJSON(data, &root); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	case FormatCUE:
		js, err := cueToJSON(data, name)
		if err != nil {
			return nil, err
		}
		if err := decodeJSON(js, &root); err != nil {
			return nil, fmt.Errorf("decode cue: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	return decodeFile(root)
}

func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// cueToJSON evaluates a CUE transaction file against the schema and exports
// it as JSON.
func cueToJSON(data []byte, name string) ([]byte, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile cue: %w", err)
	}

	v = schema.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate cue: %w", err)
	}

	js, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("export cue: %w", err)
	}
	return js, nil
}

var knownKeys = []string{"op", "id", "attrs", "expected", "valid_from", "valid_to", "valid_time"}

func decodeFile(root any) ([]model.Operation, error) {
	top, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("transaction file must be a mapping with an operations list")
	}
	for k := range top {
		if k != "operations" {
			return nil, fmt.Errorf("unknown top-level field %q", k)
		}
	}
	raw, ok := top["operations"].([]any)
	if !ok && top["operations"] != nil {
		return nil, fmt.Errorf("operations must be a list")
	}
	return DecodeOperations(raw)
}

// DecodeOperations converts generic decoded values (YAML or JSON mappings in
// the transaction file shape) into operations.
func DecodeOperations(raw []any) ([]model.Operation, error) {
	ops := make([]model.Operation, 0, len(raw))
	for i, item := range raw {
		op, err := decodeOperation(item)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func decodeOperation(item any) (model.Operation, error) {
	m, ok := item.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", item)
	}
	for k := range m {
		if !slices.Contains(knownKeys, k) {
			return nil, fmt.Errorf("unknown field %q", k)
		}
	}

	kind, _ := m["op"].(string)
	id, _ := m["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("missing id")
	}

	from, err := timeField(m, "valid_from")
	if err != nil {
		return nil, err
	}
	to, err := timeField(m, "valid_to")
	if err != nil {
		return nil, err
	}
	at, err := timeField(m, "valid_time")
	if err != nil {
		return nil, err
	}

	switch model.OpKind(kind) {
	case model.OpPut:
		doc, err := document(id, m["attrs"])
		if err != nil {
			return nil, err
		}
		return model.Put{Document: doc, ValidFrom: from, ValidTo: to}, nil

	case model.OpDelete:
		return model.Delete{ID: id, ValidFrom: from, ValidTo: to}, nil

	case model.OpMatch:
		op := model.Match{ID: id, ValidTime: at}
		if expected, ok := m["expected"]; ok && expected != nil {
			doc, err := document(id, expected)
			if err != nil {
				return nil, fmt.Errorf("expected: %w", err)
			}
			op.Expected = &doc
		}
		return op, nil

	case model.OpMatchNotExists:
		return model.MatchNotExists{ID: id, ValidTime: at}, nil

	case model.OpEvict:
		return model.Evict{ID: id}, nil

	default:
		return nil, fmt.Errorf("unknown op %q", kind)
	}
}

func document(id string, attrs any) (model.Document, error) {
	if attrs == nil {
		return model.Document{ID: id, Attrs: model.Object{}}, nil
	}
	m, ok := attrs.(map[string]any)
	if !ok {
		return model.Document{}, fmt.Errorf("attrs must be a mapping, got %T", attrs)
	}
	return model.NewDocument(id, m)
}

func timeField(m map[string]any, key string) (time.Time, error) {
	switch v := m[key].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return model.NormalizeTime(v), nil
	case string:
		t, err := model.ParseTime(v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", key, err)
		}
		return model.NormalizeTime(t), nil
	default:
		return time.Time{}, fmt.Errorf("%s: expected an RFC 3339 timestamp, got %T", key, v)
	}
}

// Marshal renders ops in the transaction file shape as canonical JSON, with
// document bodies inline. Loading the output yields the same operations.
func Marshal(ops []model.Operation) ([]byte, error) {
	arr := make(model.Array, 0, len(ops))
	for i, op := range ops {
		obj, err := marshalOperation(op)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		arr = append(arr, obj)
	}
	return model.MarshalCanonical(model.Object{"operations": arr})
}

func marshalOperation(op model.Operation) (model.Object, error) {
	if op == nil {
		return nil, fmt.Errorf("nil operation")
	}
	obj := model.Object{
		"op": model.String(op.Kind()),
		"id": model.String(op.EntityID()),
	}
	putTime := func(key string, t time.Time) {
		if !t.IsZero() {
			obj[key] = model.String(model.FormatTime(t))
		}
	}
	attrs := func(doc model.Document) model.Object {
		if doc.Attrs == nil {
			return model.Object{}
		}
		return doc.Attrs
	}

	switch o := op.(type) {
	case model.Put:
		obj["attrs"] = attrs(o.Document)
		putTime("valid_from", o.ValidFrom)
		putTime("valid_to", o.ValidTo)
	case model.Delete:
		putTime("valid_from", o.ValidFrom)
		putTime("valid_to", o.ValidTo)
	case model.Match:
		if o.Expected != nil {
			obj["expected"] = attrs(*o.Expected)
		}
		putTime("valid_time", o.ValidTime)
	case model.MatchNotExists:
		putTime("valid_time", o.ValidTime)
	case model.Evict:
	default:
		return nil, fmt.Errorf("unsupported operation type %T", op)
	}
	return obj, nil
}
