package firez

// Field is a single key/value pair attached to a span or event.
type Field struct {
	Value any
	Key   string
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Fields is an insertion-ordered mapping of context keys to JSON-shaped values.
// Setting a key that already exists replaces its value in place: the last
// write wins and the key keeps its original position.
// The zero value is an empty mapping ready for use.
// Fields is NOT safe for concurrent mutation.
type Fields struct {
	index map[string]int
	keys  []string
	vals  []any
}

// FieldsOf builds a Fields mapping from the given pairs, in order.
func FieldsOf(fields ...Field) Fields {
	var f Fields
	for _, field := range fields {
		f.Set(field.Key, field.Value)
	}
	return f
}

// Set stores value under key.
func (f *Fields) Set(key string, value any) {
	if i, ok := f.index[key]; ok {
		f.vals[i] = value
		return
	}
	if f.index == nil {
		f.index = make(map[string]int)
	}
	f.index[key] = len(f.keys)
	f.keys = append(f.keys, key)
	f.vals = append(f.vals, value)
}

// Get returns the value stored under key.
func (f *Fields) Get(key string) (any, bool) {
	i, ok := f.index[key]
	if !ok {
		return nil, false
	}
	return f.vals[i], true
}

// Delete removes key, preserving the relative order of the remaining keys.
func (f *Fields) Delete(key string) {
	i, ok := f.index[key]
	if !ok {
		return
	}
	f.keys = append(f.keys[:i], f.keys[i+1:]...)
	f.vals = append(f.vals[:i], f.vals[i+1:]...)
	delete(f.index, key)
	for j := i; j < len(f.keys); j++ {
		f.index[f.keys[j]] = j
	}
}

// Len returns the number of keys.
func (f *Fields) Len() int {
	return len(f.keys)
}

// Keys returns a copy of the keys in insertion order.
func (f *Fields) Keys() []string {
	if len(f.keys) == 0 {
		return nil
	}
	keys := make([]string, len(f.keys))
	copy(keys, f.keys)
	return keys
}

// Range calls fn for every pair in insertion order until fn returns false.
func (f *Fields) Range(fn func(key string, value any) bool) {
	for i, k := range f.keys {
		if !fn(k, f.vals[i]) {
			return
		}
	}
}

// Clone returns a copy that shares no storage with f.
// Values themselves are copied shallowly.
func (f *Fields) Clone() Fields {
	if len(f.keys) == 0 {
		return Fields{}
	}
	c := Fields{
		index: make(map[string]int, len(f.keys)),
		keys:  make([]string, len(f.keys)),
		vals:  make([]any, len(f.vals)),
	}
	copy(c.keys, f.keys)
	copy(c.vals, f.vals)
	for k, i := range f.index {
		c.index[k] = i
	}
	return c
}
