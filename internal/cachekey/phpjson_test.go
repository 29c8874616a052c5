package cachekey

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodePHPJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "null", in: nil, want: `null`},
		{name: "list", in: []any{true, "https://x/a", nil}, want: `[true,"https:\/\/x\/a",null]`},
		{name: "unicode", in: "café", want: `"caf\u00e9"`},
		{name: "astral", in: "😀", want: `"\ud83d\ude00"`},
		{name: "html untouched", in: "<a&b>", want: `"<a&b>"`},
		{name: "control", in: "a\tb\x01", want: `"a\tb\u0001"`},
		{name: "quotes", in: `"\`, want: `"\"\\"`},
		{name: "map sorted", in: map[string]any{"b": 1, "a": "x"}, want: `{"a":"x","b":1}`},
		{name: "ordered object", in: object{{Key: "1", Value: false}, {Key: "0", Value: int64(2)}}, want: `{"1":false,"0":2}`},
		{name: "float", in: 1.5, want: `1.5`},
		{name: "integral float", in: 2.0, want: `2.0`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := encodePHPJSON(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodePHPJSONErrors(t *testing.T) {
	t.Parallel()

	_, err := encodePHPJSON("bad\xffbyte")
	require.Error(t, err)

	_, err = encodePHPJSON(math.NaN())
	require.Error(t, err)

	_, err = encodePHPJSON(struct{}{})
	require.ErrorContains(t, err, "unsupported value type")
}
