package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EncodeOperations renders validated operations as the canonical JSON
// payload stored in the transaction log. Document bodies are not inlined:
// puts and matches reference them by content address so eviction never has
// to rewrite the log.
//
//	[{"doc":"<hash>","id":"p1","op":"put","valid_from":"2000-01-01T01:00:00Z"}]
func EncodeOperations(ops []Operation) ([]byte, error) {
	arr := make(Array, 0, len(ops))
	for i, op := range ops {
		obj, err := encodeOperation(op)
		if err != nil {
			return nil, fmt.Errorf("encode operation %d: %w", i, err)
		}
		arr = append(arr, obj)
	}
	return MarshalCanonical(arr)
}

func encodeOperation(op Operation) (Object, error) {
	obj := Object{
		"op": String(op.Kind()),
		"id": String(op.EntityID()),
	}
	putTime := func(key string, t time.Time) {
		if !t.IsZero() {
			obj[key] = String(FormatTime(t))
		}
	}

	switch o := op.(type) {
	case Put:
		if o.DocHash == "" {
			return nil, fmt.Errorf("put %q has no document hash", o.Document.ID)
		}
		obj["doc"] = String(o.DocHash)
		putTime("valid_from", o.ValidFrom)
		putTime("valid_to", o.ValidTo)
	case Delete:
		putTime("valid_from", o.ValidFrom)
		putTime("valid_to", o.ValidTo)
	case Match:
		if o.ExpectedHash != "" {
			obj["expected"] = String(o.ExpectedHash)
		}
		putTime("valid_time", o.ValidTime)
	case MatchNotExists:
		putTime("valid_time", o.ValidTime)
	case Evict:
	default:
		return nil, fmt.Errorf("unsupported operation type %T", op)
	}
	return obj, nil
}

type payloadOp struct {
	Op        string `json:"op"`
	ID        string `json:"id"`
	Doc       string `json:"doc"`
	Expected  string `json:"expected"`
	ValidFrom string `json:"valid_from"`
	ValidTo   string `json:"valid_to"`
	ValidTime string `json:"valid_time"`
}

// DecodeOperations parses a log payload. Put and Match operations come back
// with their hashes and a body-less Document carrying only the id; callers
// load bodies from the document store.
func DecodeOperations(data []byte) ([]Operation, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var raw []payloadOp
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}

	ops := make([]Operation, 0, len(raw))
	for i, p := range raw {
		op, err := p.decode()
		if err != nil {
			return nil, fmt.Errorf("decode operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (p payloadOp) decode() (Operation, error) {
	if p.ID == "" {
		return nil, errEmptyID
	}
	parse := func(s string) (time.Time, error) {
		if s == "" {
			return time.Time{}, nil
		}
		return ParseTime(s)
	}
	from, err := parse(p.ValidFrom)
	if err != nil {
		return nil, err
	}
	to, err := parse(p.ValidTo)
	if err != nil {
		return nil, err
	}
	at, err := parse(p.ValidTime)
	if err != nil {
		return nil, err
	}

	switch OpKind(p.Op) {
	case OpPut:
		if p.Doc == "" {
			return nil, fmt.Errorf("put %q without document hash", p.ID)
		}
		return Put{Document: Document{ID: p.ID}, ValidFrom: from, ValidTo: to, DocHash: p.Doc}, nil
	case OpDelete:
		return Delete{ID: p.ID, ValidFrom: from, ValidTo: to}, nil
	case OpMatch:
		m := Match{ID: p.ID, ValidTime: at, ExpectedHash: p.Expected}
		if p.Expected != "" {
			m.Expected = &Document{ID: p.ID}
		}
		return m, nil
	case OpMatchNotExists:
		return MatchNotExists{ID: p.ID, ValidTime: at}, nil
	case OpEvict:
		return Evict{ID: p.ID}, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", p.Op)
	}
}
