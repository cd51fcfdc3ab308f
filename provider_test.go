package firez

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringer struct{}

func (stringer) String() string { return "stringer" }

func TestLogProviderEvent(t *testing.T) {
	lp := LogProvider{TargetKey: "target"}
	p, err := lp.Payload(EventInfo{
		Kind:     KindEvent,
		Message:  "hello",
		Target:   "db.pool",
		Level:    LevelWarn,
		Location: &Location{File: "main.go", Line: 42},
		Fields:   []Field{F("n", 1)},
	})
	require.NoError(t, err)

	assert.Equal(t, "event main.go:42", p.Name)
	assert.Equal(t, []string{MessageKey, "n", "target"}, p.Fields.Keys())
	v, _ := p.Fields.Get("target")
	assert.Equal(t, "db.pool", v)
	assert.Equal(t, "hello", p.Label())
}

func TestLogProviderSpan(t *testing.T) {
	p, err := LogProvider{}.Payload(EventInfo{Kind: KindSpan, Name: "load", Message: "ignored", Target: "t"})
	require.NoError(t, err)
	assert.Equal(t, "load", p.Name)
	assert.True(t, p.IsSpan())
	assert.Equal(t, 0, p.Fields.Len())
}

func TestLogProviderUnknownKind(t *testing.T) {
	_, err := LogProvider{}.Payload(EventInfo{Kind: Kind(9)})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   any
		want any
	}{
		{errors.New("boom"), "boom"},
		{ts, "2024-01-02T03:04:05Z"},
		{1500 * time.Millisecond, "1.5s"},
		{[]byte("raw"), "raw"},
		{netip.MustParseAddr("10.0.0.1"), "10.0.0.1"},
		{stringer{}, "stringer"},
		{42, 42},
		{nil, nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalize(tt.in))
	}
}

func TestProviderFunc(t *testing.T) {
	var got EventInfo
	pf := ProviderFunc(func(info EventInfo) (Payload, error) {
		got = info
		return Payload{Kind: info.Kind, Name: "fixed"}, nil
	})
	p, err := pf.Payload(EventInfo{Kind: KindSpan, Name: "x"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", p.Name)
	assert.Equal(t, "x", got.Name)
}
