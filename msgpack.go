package firez

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// msgpackPreallocLimit caps the capacity taken from an array header. Longer
// arrays still decode, growing as elements arrive.
const msgpackPreallocLimit = 1024

// EncodeMsgpack writes the tree to w as MessagePack. The document has the
// same shape and key order as the JSON wire format.
func (a *Ashes) EncodeMsgpack(w io.Writer) error {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	enc.SetSortMapKeys(true)
	return a.encodeMsgpackNode(enc, -1)
}

func (a *Ashes) encodeMsgpackNode(enc *msgpack.Encoder, idx int) error {
	children := a.children(idx)
	n := len(children)
	if idx >= 0 {
		n++
	}
	if err := enc.EncodeMapLen(n); err != nil {
		return err
	}
	if idx >= 0 {
		if err := enc.EncodeString(wirePayloadKey); err != nil {
			return err
		}
		if err := encodeMsgpackPayload(enc, &a.nodes[idx].payload); err != nil {
			return err
		}
	}
	for i, child := range children {
		if err := enc.EncodeString(strconv.Itoa(i)); err != nil {
			return err
		}
		if err := a.encodeMsgpackNode(enc, child); err != nil {
			return err
		}
	}
	return nil
}

func encodeMsgpackPayload(enc *msgpack.Encoder, p *Payload) error {
	n := 1 // is_span
	if p.Name != "" {
		n++
	}
	if p.Level != "" {
		n++
	}
	if p.Location != nil {
		n += 2
	}
	if p.Fields.Len() > 0 {
		n++
	}
	if err := enc.EncodeMapLen(n); err != nil {
		return err
	}

	str := func(k, v string) error {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		return enc.EncodeString(v)
	}
	if p.Name != "" {
		if err := str(wireName, p.Name); err != nil {
			return err
		}
	}
	if p.Level != "" {
		if err := str(wireLevel, string(p.Level)); err != nil {
			return err
		}
	}
	if p.Location != nil {
		if err := str(wireFile, p.Location.File); err != nil {
			return err
		}
		if err := enc.EncodeString(wireLine); err != nil {
			return err
		}
		if err := enc.EncodeInt(int64(p.Location.Line)); err != nil {
			return err
		}
	}
	if err := enc.EncodeString(wireIsSpan); err != nil {
		return err
	}
	if err := enc.EncodeBool(p.IsSpan()); err != nil {
		return err
	}
	if p.Fields.Len() > 0 {
		if err := enc.EncodeString(wireCtx); err != nil {
			return err
		}
		return encodeMsgpackFields(enc, &p.Fields)
	}
	return nil
}

func encodeMsgpackFields(enc *msgpack.Encoder, f *Fields) error {
	if err := enc.EncodeMapLen(f.Len()); err != nil {
		return err
	}
	var err error
	f.Range(func(k string, v any) bool {
		if err = enc.EncodeString(k); err != nil {
			return false
		}
		if err = encodeMsgpackValue(enc, v); err != nil {
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
	return err
}

func encodeMsgpackValue(enc *msgpack.Encoder, v any) error {
	switch val := v.(type) {
	case Fields:
		return encodeMsgpackFields(enc, &val)
	case *Fields:
		return encodeMsgpackFields(enc, val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return enc.EncodeInt(i)
		}
		fl, err := val.Float64()
		if err != nil {
			return err
		}
		return enc.EncodeFloat64(fl)
	case []any:
		if err := enc.EncodeArrayLen(len(val)); err != nil {
			return err
		}
		for i, item := range val {
			if err := encodeMsgpackValue(enc, item); err != nil {
				var se *SerializationError
				if errors.As(err, &se) {
					se.Key = strconv.Itoa(i) + "." + se.Key
					return se
				}
				return &SerializationError{Key: strconv.Itoa(i), Err: err}
			}
		}
		return nil
	}
	return enc.Encode(v)
}

// ImportMsgpack reads a tree written by EncodeMsgpack. It applies the same
// structural checks as ImportJSON.
func ImportMsgpack(r io.Reader) (*Ashes, error) {
	dec := msgpack.NewDecoder(r)
	root, err := decodeMsgpackNode(dec, true, "$")
	if err != nil {
		return nil, err
	}
	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return nil, malformed("trailing data after tree")
	}
	return rebuild(root)
}

func decodeMsgpackNode(dec *msgpack.Decoder, isRoot bool, path string) (*wireNode, error) {
	size, err := dec.DecodeMapLen()
	if err != nil {
		return nil, malformed("%s: %v", path, err)
	}
	n := &wireNode{}
	for i := 0; i < size; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, malformed("%s: %v", path, err)
		}
		if key == wirePayloadKey {
			if isRoot {
				return nil, malformed("root carries a payload")
			}
			if n.payload != nil {
				return nil, malformed("%s: duplicate payload", path)
			}
			if n.payload, err = decodeMsgpackPayload(dec, path); err != nil {
				return nil, err
			}
			continue
		}

		idx, err := childIndex(key)
		if err != nil {
			return nil, malformed("%s: %v", path, err)
		}
		if _, dup := n.children[idx]; dup {
			return nil, malformed("%s: duplicate child %q", path, key)
		}
		childPath := path + "." + key
		child, err := decodeMsgpackNode(dec, false, childPath)
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
	if err := checkDense(n, path); err != nil {
		return nil, err
	}
	return n, nil
}

func decodeMsgpackPayload(dec *msgpack.Decoder, path string) (*Payload, error) {
	size, err := dec.DecodeMapLen()
	if err != nil {
		return nil, malformed("%s: payload: %v", path, err)
	}
	p := &Payload{Kind: KindSpan}
	var loc Location
	var hasFile, hasLine bool
	for i := 0; i < size; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return nil, malformed("%s: %v", path, err)
		}
		switch key {
		case wireName:
			p.Name, err = dec.DecodeString()
		case wireLevel:
			var lvl string
			lvl, err = dec.DecodeString()
			p.Level = Level(lvl)
		case wireFile:
			loc.File, err = dec.DecodeString()
			hasFile = true
		case wireLine:
			loc.Line, err = dec.DecodeInt()
			hasLine = true
		case wireIsSpan:
			var code byte
			if code, err = dec.PeekCode(); err == nil && code == msgpcode.Nil {
				// Same as absent.
				err = dec.DecodeNil()
				break
			}
			var isSpan bool
			isSpan, err = dec.DecodeBool()
			if !isSpan {
				p.Kind = KindEvent
			}
		case wireCtx:
			p.Fields, err = decodeMsgpackFields(dec)
		default:
			err = dec.Skip()
		}
		if err != nil {
			return nil, malformed("%s: %s: %v", path, key, err)
		}
	}
	if hasFile != hasLine {
		return nil, malformed("%s: file and line must appear together", path)
	}
	if hasFile {
		p.Location = &loc
	}
	return p, nil
}

func decodeMsgpackFields(dec *msgpack.Decoder) (Fields, error) {
	size, err := dec.DecodeMapLen()
	if err != nil {
		return Fields{}, err
	}
	var f Fields
	for i := 0; i < size; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return Fields{}, err
		}
		v, err := decodeMsgpackValue(dec)
		if err != nil {
			return Fields{}, fmt.Errorf("%s: %w", key, err)
		}
		f.Set(key, v)
	}
	return f, nil
}

func decodeMsgpackValue(dec *msgpack.Decoder) (any, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}
	switch {
	case msgpcode.IsFixedMap(code) || code == msgpcode.Map16 || code == msgpcode.Map32:
		return decodeMsgpackFields(dec)
	case msgpcode.IsFixedArray(code) || code == msgpcode.Array16 || code == msgpcode.Array32:
		size, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		items := make([]any, 0, min(size, msgpackPreallocLimit))
		for i := 0; i < size; i++ {
			v, err := decodeMsgpackValue(dec)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	default:
		return dec.DecodeInterfaceLoose()
	}
}
