package firez

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleTree(t *testing.T) (*Ashes, NodeRef) {
	t.Helper()
	f := NewFire()
	r, err := f.Append(Root, span("root"))
	require.NoError(t, err)
	_, err = f.Append(r, event("hi"))
	require.NoError(t, err)
	tree, err := f.Burn()
	require.NoError(t, err)
	return tree, r
}

func TestMarshalExample(t *testing.T) {
	tree, r := exampleTree(t)

	b, err := tree.Branch(r)
	require.NoError(t, err)
	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `{"v":{"name":"root","is_span":true},"0":{"v":{"is_span":false,"ctx":{"message":"hi"}}}}`, string(data))

	data, err = json.Marshal(tree)
	require.NoError(t, err)
	assert.Equal(t, `{"0":{"v":{"name":"root","is_span":true},"0":{"v":{"is_span":false,"ctx":{"message":"hi"}}}}}`, string(data))
}

func TestMarshalEmptyTree(t *testing.T) {
	tree, err := NewFire().Burn()
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))

	back, err := ImportJSON(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 0, back.Len())
}

func TestMarshalPayloadFieldOrder(t *testing.T) {
	f := NewFire()
	p := Payload{
		Kind:     KindEvent,
		Name:     "n",
		Level:    LevelWarn,
		Location: &Location{File: "a.go", Line: 7},
		Fields:   FieldsOf(F("z", 1), F("a", "x"), F("m", []any{true, nil}), F("nested", FieldsOf(F("b", 2), F("a", 1)))),
	}
	_, _ = f.Append(Root, p)
	tree, _ := f.Burn()

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.Equal(t,
		`{"0":{"v":{"name":"n","level":"WARN","file":"a.go","line":7,"is_span":false,"ctx":{"z":1,"a":"x","m":[true,null],"nested":{"b":2,"a":1}}}}}`,
		string(data))
}

func TestMarshalIsDeterministic(t *testing.T) {
	f := NewFire()
	parent, _ := f.Append(Root, span("p"))
	for i := 0; i < 12; i++ {
		p := event("e")
		p.Fields.Set("map", map[string]any{"b": 1, "a": 2, "c": 3})
		p.Fields.Set("i", i)
		_, _ = f.Append(parent, p)
	}
	tree, _ := f.Burn()

	first, err := json.Marshal(tree)
	require.NoError(t, err)
	second, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	// Child "10" must follow "9", not "1".
	assert.Less(t, bytes.Index(first, []byte(`"9":`)), bytes.Index(first, []byte(`"10":`)))
}

func TestRoundTrip(t *testing.T) {
	f, refs := buildNested(t)
	require.NoError(t, f.Update(refs["xy"], func(p *Payload) {
		p.Level = LevelDebug
		p.Location = &Location{File: "x.go", Line: 3}
		p.Fields = FieldsOf(F("n", 1.5), F("s", "v"), F("list", []any{1, "two"}), F("obj", FieldsOf(F("k", false))))
	}))
	_, err := f.Append(refs["yxx"], event("leaf"))
	require.NoError(t, err)
	tree, err := f.Burn()
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)

	var back Ashes
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tree.Len(), back.Len())
	assertNested(t, &back)

	again, err := json.Marshal(&back)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
	assert.Equal(t, string(data), string(again))

	xy := back.Root().Child(0).Child(1).Payload()
	assert.Equal(t, LevelDebug, xy.Level)
	assert.Equal(t, &Location{File: "x.go", Line: 3}, xy.Location)
	assert.Equal(t, []string{"n", "s", "list", "obj"}, xy.Fields.Keys())
	obj, _ := xy.Fields.Get("obj")
	assert.IsType(t, Fields{}, obj)
}

func TestImportDefaultsToSpan(t *testing.T) {
	tree, err := ImportJSON(strings.NewReader(`{"0":{"v":{"name":"a","extra":{"ignored":[1,2]}}}}`))
	require.NoError(t, err)
	p := tree.Root().Child(0).Payload()
	assert.True(t, p.IsSpan())
	assert.Equal(t, "a", p.Name)
}

func TestImportNullIsSpanDefaultsToSpan(t *testing.T) {
	tree, err := ImportJSON(strings.NewReader(`{"0":{"v":{"name":"a","is_span":null}},"1":{"v":{"name":"b","is_span":false}}}`))
	require.NoError(t, err)
	assert.True(t, tree.Root().Child(0).Payload().IsSpan())
	assert.False(t, tree.Root().Child(1).Payload().IsSpan())
}

func TestImportAcceptsOutOfOrderKeys(t *testing.T) {
	tree, err := ImportJSON(strings.NewReader(`{"1":{"v":{"name":"b"}},"0":{"v":{"name":"a"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "a", tree.Root().Child(0).Payload().Name)
	assert.Equal(t, "b", tree.Root().Child(1).Payload().Name)
}

func TestImportRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"payload on root":   `{"v":{"name":"x"}}`,
		"gap":               `{"0":{"v":{}},"2":{"v":{}}}`,
		"missing zero":      `{"1":{"v":{}}}`,
		"duplicate child":   `{"0":{"v":{}},"0":{"v":{}}}`,
		"non-numeric key":   `{"a":{"v":{}}}`,
		"leading zero":      `{"00":{"v":{}}}`,
		"negative":          `{"-1":{"v":{}}}`,
		"child no payload":  `{"0":{}}`,
		"nested gap":        `{"0":{"v":{},"1":{"v":{}}}}`,
		"file without line": `{"0":{"v":{"file":"a.go"}}}`,
		"not an object":     `[]`,
		"truncated":         `{"0":{"v":{}}`,
		"trailing data":     `{} {}`,
		"bad is_span":       `{"0":{"v":{"is_span":"yes"}}}`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ImportJSON(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrMalformedTree)
		})
	}
}

func TestMarshalUnserializableValue(t *testing.T) {
	f := NewFire()
	p := event("bad")
	p.Fields.Set("ok", 1)
	p.Fields.Set("nested", FieldsOf(F("nan", math.NaN())))
	_, _ = f.Append(Root, p)
	tree, _ := f.Burn()

	_, err := tree.MarshalJSON()
	require.Error(t, err)
	var se *SerializationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "nested.nan", se.Key)
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestExportFileLeavesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	f := NewFire()
	p := event("bad")
	p.Fields.Set("fn", func() {})
	_, _ = f.Append(Root, p)
	tree, _ := f.Burn()

	err := ExportFile(path, tree, ExportOptions{})
	assert.ErrorIs(t, err, ErrSerialization)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial artifact or temp file may remain")
}

func TestExportFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	tree, _ := exampleTree(t)
	require.NoError(t, ExportFile(path, tree, ExportOptions{Indent: "  "}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	back, err := ImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())
}

func TestExportFileIsWorldReadable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	tree, _ := exampleTree(t)
	require.NoError(t, ExportFile(path, tree, ExportOptions{}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestExportFileMissingDirectory(t *testing.T) {
	tree, _ := exampleTree(t)
	err := ExportFile(filepath.Join(t.TempDir(), "nope", "out.json"), tree, ExportOptions{})
	assert.Error(t, err)
}

func TestExportUnknownFormat(t *testing.T) {
	tree, _ := exampleTree(t)
	var buf bytes.Buffer
	assert.Error(t, Export(&buf, tree, ExportOptions{Format: "xml"}))
	assert.Zero(t, buf.Len())
}

func TestFieldsJSON(t *testing.T) {
	var f Fields
	require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":{"y":2,"x":3},"b":4}`), &f))
	assert.Equal(t, []string{"b", "a"}, f.Keys())
	v, _ := f.Get("b")
	assert.Equal(t, json.Number("4"), v)

	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Equal(t, `{"b":4,"a":{"y":2,"x":3}}`, string(data))
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatForPath("a.json"))
	assert.Equal(t, FormatJSON, FormatForPath("a"))
	assert.Equal(t, FormatMsgpack, FormatForPath("a.msgpack"))
	assert.Equal(t, FormatMsgpack, FormatForPath("A.MP"))

	f, err := ParseFormat("MsgPack")
	require.NoError(t, err)
	assert.Equal(t, FormatMsgpack, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
