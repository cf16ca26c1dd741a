package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_MarshalPreservesInsertionOrder(t *testing.T) {
	v := Object(F("b", Int(2)), F("a", String("x")), F("c", Null()))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2,"a":"x","c":null}`, string(out))
}

func TestValue_CanonicalSortsKeysRecursively(t *testing.T) {
	v := Object(
		F("z", List(Object(F("y", Int(1)), F("x", Int(2))))),
		F("a", Bool(true)),
	)

	out, err := v.Canonical()
	require.NoError(t, err)
	assert.Equal(t, `{"a":true,"z":[{"x":2,"y":1}]}`, string(out))
}

func TestValue_CanonicalIgnoresFieldOrder(t *testing.T) {
	a := Object(F("endpoint", String("timeseries")), F("country", String("Italy")))
	b := Object(F("country", String("Italy")), F("endpoint", String("timeseries")))

	ca, err := a.Canonical()
	require.NoError(t, err)
	cb, err := b.Canonical()
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
	assert.True(t, a.Equal(b))
}

func TestValue_RoundTripKeepsBytes(t *testing.T) {
	in := `[{"DATE":"2020-03-01","CASES":1577,"ratio":0.25,"big":1e+21,"note":null,"ok":false}]`

	var v Value
	require.NoError(t, json.Unmarshal([]byte(in), &v))

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, in, string(out))
}

func TestValue_UnmarshalRejectsTrailingData(t *testing.T) {
	var v Value
	assert.Error(t, v.UnmarshalJSON([]byte(`{"a":1} {"b":2}`)))
	assert.Error(t, v.UnmarshalJSON([]byte(`{"a":`)))
}

func TestFloat_NonFiniteIsNull(t *testing.T) {
	assert.True(t, Float(math.NaN()).IsNull())
	assert.True(t, Float(math.Inf(1)).IsNull())
	assert.False(t, Float(1.5).IsNull())
}

func TestFloat_Formatting(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.5, "1.5"},
		{100, "100"},
		{-0.001, "-0.001"},
		{1e-7, "1e-7"},
		{2.5e22, "2.5e+22"},
	}
	for _, tt := range tests {
		out, err := json.Marshal(Float(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, string(out), "input %v", tt.in)
	}
}

func TestValue_With(t *testing.T) {
	base := Object(F("COUNTRY_REGION", String("Italy")), F("total_cases", Int(10)))

	withLabel := base.With("cluster", Int(3))
	replaced := withLabel.With("total_cases", Int(11))

	assert.Equal(t, []string{"COUNTRY_REGION", "total_cases"}, base.Keys(), "original is not mutated")
	assert.Equal(t, []string{"COUNTRY_REGION", "total_cases", "cluster"}, withLabel.Keys())
	assert.Equal(t, []string{"COUNTRY_REGION", "total_cases", "cluster"}, replaced.Keys())

	got, ok := replaced.Get("total_cases")
	require.True(t, ok)
	n, ok := got.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(11), n)
}

func TestValue_Accessors(t *testing.T) {
	v := List(Int(7), Float(2.5), String("s"), Bool(true), Null())

	assert.Equal(t, 5, v.Len())
	n, ok := v.Index(0).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = v.Index(1).AsInt()
	assert.False(t, ok, "2.5 is not integral")
	f, ok := v.Index(1).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	s, ok := v.Index(2).AsString()
	assert.True(t, ok)
	assert.Equal(t, "s", s)

	b, ok := v.Index(3).AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	assert.True(t, v.Index(4).IsNull())
	assert.True(t, v.Index(99).IsNull())
}

func TestFromAny(t *testing.T) {
	type key struct {
		Endpoint string `json:"endpoint"`
		Country  string `json:"country"`
	}

	fromMap, err := FromAny(map[string]any{"endpoint": "timeseries", "country": "Italy"})
	require.NoError(t, err)
	fromStruct, err := FromAny(key{Endpoint: "timeseries", Country: "Italy"})
	require.NoError(t, err)
	assert.True(t, fromMap.Equal(fromStruct))

	day, err := FromAny(time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	s, _ := day.AsString()
	assert.Equal(t, "2020-03-01", s)

	ts, err := FromAny(time.Date(2020, 3, 1, 12, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	s, _ = ts.AsString()
	assert.Equal(t, "2020-03-01T12:30:00Z", s)

	nested, err := FromAny([]any{1, "a", nil, []any{true}})
	require.NoError(t, err)
	out, err := json.Marshal(nested)
	require.NoError(t, err)
	assert.Equal(t, `[1,"a",null,[true]]`, string(out))

	var nilPtr *key
	null, err := FromAny(nilPtr)
	require.NoError(t, err)
	assert.True(t, null.IsNull())

	_, err = FromAny(make(chan int))
	assert.Error(t, err)
}
