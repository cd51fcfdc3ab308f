package firez

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Wire keys.
const (
	wirePayloadKey = "v"
	wireName       = "name"
	wireLevel      = "level"
	wireFile       = "file"
	wireLine       = "line"
	wireIsSpan     = "is_span"
	wireCtx        = "ctx"
)

// MarshalJSON encodes the tree in the nested wire format:
//
//	{"v":{...payload...},"0":{...child 0...},"1":{...}}
//
// Root carries no "v". Child keys are dense and emitted in order, and the
// output is byte-identical across calls for an unchanged tree.
func (a *Ashes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.encodeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON encodes the subtree rooted at b in the wire format.
func (b Branch) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.tree.writeNode(&buf, b.idx); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a *Ashes) encodeJSON(buf *bytes.Buffer) error {
	return a.writeNode(buf, -1)
}

func (a *Ashes) writeNode(buf *bytes.Buffer, idx int) error {
	buf.WriteByte('{')
	first := true
	if idx >= 0 {
		buf.WriteString(`"v":`)
		if err := writePayload(buf, &a.nodes[idx].payload); err != nil {
			return err
		}
		first = false
	}
	for i, child := range a.children(idx) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteByte('"')
		buf.WriteString(strconv.Itoa(i))
		buf.WriteString(`":`)
		if err := a.writeNode(buf, child); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writePayload(buf *bytes.Buffer, p *Payload) error {
	buf.WriteByte('{')
	sep := ""
	key := func(k string) {
		buf.WriteString(sep)
		sep = ","
		writeString(buf, k)
		buf.WriteByte(':')
	}

	if p.Name != "" {
		key(wireName)
		writeString(buf, p.Name)
	}
	if p.Level != "" {
		key(wireLevel)
		writeString(buf, string(p.Level))
	}
	if p.Location != nil {
		key(wireFile)
		writeString(buf, p.Location.File)
		key(wireLine)
		buf.WriteString(strconv.Itoa(p.Location.Line))
	}
	key(wireIsSpan)
	buf.WriteString(strconv.FormatBool(p.IsSpan()))
	if p.Fields.Len() > 0 {
		key(wireCtx)
		if err := writeFields(buf, &p.Fields); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeFields encodes f as a JSON object in insertion order.
// The first value that cannot be encoded is reported as a SerializationError.
func writeFields(buf *bytes.Buffer, f *Fields) error {
	buf.WriteByte('{')
	var err error
	i := 0
	f.Range(func(k string, v any) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		writeString(buf, k)
		buf.WriteByte(':')
		if err = writeValue(buf, v); err != nil {
			var se *SerializationError
			if errors.As(err, &se) {
				se.Key = k + "." + se.Key
				return false
			}
			err = &SerializationError{Key: k, Err: err}
			return false
		}
		return true
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case Fields:
		return writeFields(buf, &val)
	case *Fields:
		return writeFields(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				var se *SerializationError
				if errors.As(err, &se) {
					se.Key = strconv.Itoa(i) + "." + se.Key
					return se
				}
				return &SerializationError{Key: strconv.Itoa(i), Err: err}
			}
		}
		buf.WriteByte(']')
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	data, _ := json.Marshal(s) //nolint:errcheck // strings always encode
	buf.Write(data)
}

// MarshalJSON encodes f as a JSON object preserving insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeFields(&buf, &f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into f preserving key order.
// Numbers decode as json.Number and nested objects as Fields.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	fields, err := decodeFields(dec)
	if err != nil {
		return err
	}
	*f = fields
	return nil
}

// UnmarshalJSON replaces a with the tree encoded in data.
// See ImportJSON for the accepted format.
func (a *Ashes) UnmarshalJSON(data []byte) error {
	t, err := ImportJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	*a = *t
	return nil
}

// wireNode is a decoded node before it is rebuilt into an arena.
type wireNode struct {
	payload  *Payload
	children map[int]*wireNode
}

// ImportJSON reads a tree in the nested wire format. It is strict about
// structure: a payload on the root, a child without a payload, non-canonical
// or duplicate child keys, and gaps in child indices are all rejected with
// ErrMalformedTree. Unknown payload keys are ignored. An empty object is an
// empty tree.
func ImportJSON(r io.Reader) (*Ashes, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	root, err := decodeNode(dec, true, "$")
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, malformed("trailing data after tree")
	}
	return rebuild(root)
}

func decodeNode(dec *json.Decoder, isRoot bool, path string) (*wireNode, error) {
	n := &wireNode{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		if key == wirePayloadKey {
			if isRoot {
				return nil, malformed("root carries a payload")
			}
			if n.payload != nil {
				return nil, malformed("%s: duplicate payload", path)
			}
			if err := expectDelim(dec, '{'); err != nil {
				return nil, err
			}
			p, err := decodePayload(dec, path)
			if err != nil {
				return nil, err
			}
			n.payload = p
			continue
		}

		idx, err := childIndex(key)
		if err != nil {
			return nil, malformed("%s: %v", path, err)
		}
		if _, dup := n.children[idx]; dup {
			return nil, malformed("%s: duplicate child %q", path, key)
		}
		if err := expectDelim(dec, '{'); err != nil {
			return nil, err
		}
		childPath := path + "." + key
		child, err := decodeNode(dec, false, childPath)
		if err != nil {
			return nil, err
		}
		if child.payload == nil {
			return nil, malformed("%s: child without payload", childPath)
		}
		if n.children == nil {
			n.children = make(map[int]*wireNode)
		}
		n.children[idx] = child
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if err := checkDense(n, path); err != nil {
		return nil, err
	}
	return n, nil
}

// checkDense verifies that n's child keys are exactly 0..len-1.
func checkDense(n *wireNode, path string) error {
	for i := 0; i < len(n.children); i++ {
		if _, ok := n.children[i]; !ok {
			return malformed("%s: child indices are not dense, %d is missing", path, i)
		}
	}
	return nil
}

// childIndex parses a canonical non-negative decimal child key.
func childIndex(key string) (int, error) {
	idx, err := strconv.Atoi(key)
	if err != nil || idx < 0 || strconv.Itoa(idx) != key {
		return 0, fmt.Errorf("invalid child key %q", key)
	}
	return idx, nil
}

func decodePayload(dec *json.Decoder, path string) (*Payload, error) {
	p := &Payload{Kind: KindSpan}
	var file *string
	var line *int
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case wireName:
			if err := dec.Decode(&p.Name); err != nil {
				return nil, malformed("%s: name: %v", path, err)
			}
		case wireLevel:
			var lvl string
			if err := dec.Decode(&lvl); err != nil {
				return nil, malformed("%s: level: %v", path, err)
			}
			p.Level = Level(lvl)
		case wireFile:
			var s string
			if err := dec.Decode(&s); err != nil {
				return nil, malformed("%s: file: %v", path, err)
			}
			file = &s
		case wireLine:
			var num json.Number
			if err := dec.Decode(&num); err != nil {
				return nil, malformed("%s: line: %v", path, err)
			}
			l, err := strconv.Atoi(num.String())
			if err != nil {
				return nil, malformed("%s: line: %v", path, err)
			}
			line = &l
		case wireIsSpan:
			// null is the same as absent.
			var isSpan *bool
			if err := dec.Decode(&isSpan); err != nil {
				return nil, malformed("%s: is_span: %v", path, err)
			}
			if isSpan != nil && !*isSpan {
				p.Kind = KindEvent
			}
		case wireCtx:
			if err := expectDelim(dec, '{'); err != nil {
				return nil, err
			}
			fields, err := decodeFields(dec)
			if err != nil {
				return nil, err
			}
			p.Fields = fields
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, malformed("%s: %s: %v", path, key, err)
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if (file == nil) != (line == nil) {
		return nil, malformed("%s: file and line must appear together", path)
	}
	if file != nil {
		p.Location = &Location{File: *file, Line: *line}
	}
	return p, nil
}

// decodeFields reads object members up to and including the closing brace.
func decodeFields(dec *json.Decoder) (Fields, error) {
	var f Fields
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return Fields{}, err
		}
		v, err := decodeValue(dec)
		if err != nil {
			return Fields{}, err
		}
		f.Set(key, v)
	}
	if err := expectDelim(dec, '}'); err != nil {
		return Fields{}, err
	}
	return f, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, malformed("%v", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeFields(dec)
		case '[':
			items := []any{}
			for dec.More() {
				v, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				items = append(items, v)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return nil, err
			}
			return items, nil
		default:
			return nil, malformed("unexpected %q", t)
		}
	default:
		return t, nil
	}
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", malformed("%v", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", malformed("expected object key, got %v", tok)
	}
	return key, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return malformed("%v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return malformed("expected %q, got %v", want, tok)
	}
	return nil
}

// rebuild appends the decoded nodes into a fresh arena in pre-order and
// burns it, so every parent's children keep their wire order.
func rebuild(root *wireNode) (*Ashes, error) {
	f := NewFire()
	var add func(parent NodeRef, n *wireNode) error
	add = func(parent NodeRef, n *wireNode) error {
		for i := 0; i < len(n.children); i++ {
			child := n.children[i]
			ref, err := f.Append(parent, *child.payload)
			if err != nil {
				return err
			}
			if err := add(ref, child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(Root, root); err != nil {
		return nil, err
	}
	return f.Burn()
}
