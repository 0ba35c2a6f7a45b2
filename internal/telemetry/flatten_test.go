package telemetry

import (
	"testing"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		ok      bool
		want    []field
	}{
		{
			name:    "nested object and array",
			payload: `{"a":{"b":1},"c":[1,2]}`,
			ok:      true,
			want: []field{
				{name: "a.b", typ: TypeNumber, value: "1", hasValue: true},
				{name: "c", typ: TypeArray, value: "[1,2]", hasValue: true},
			},
		},
		{
			name:    "primitive types",
			payload: `{"s":"on","n":21.5,"b":true}`,
			ok:      true,
			want: []field{
				{name: "b", typ: TypeBoolean, value: "true", hasValue: true},
				{name: "n", typ: TypeNumber, value: "21.5", hasValue: true},
				{name: "s", typ: TypeString, value: "on", hasValue: true},
			},
		},
		{
			name:    "null registers key without value",
			payload: `{"gone":null}`,
			ok:      true,
			want: []field{
				{name: "gone", typ: TypeNull},
			},
		},
		{
			name:    "deep nesting",
			payload: `{"a":{"b":{"c":{"d":"deep"}}}}`,
			ok:      true,
			want: []field{
				{name: "a.b.c.d", typ: TypeString, value: "deep", hasValue: true},
			},
		},
		{
			name:    "array of objects stays one key",
			payload: `{"readings":[{"t":1},{"t":2}]}`,
			ok:      true,
			want: []field{
				{name: "readings", typ: TypeArray, value: `[{"t":1},{"t":2}]`, hasValue: true},
			},
		},
		{
			name:    "empty object yields no fields",
			payload: `{}`,
			ok:      true,
			want:    nil,
		},
		{
			name:    "plain text is not an object",
			payload: `hello`,
			ok:      false,
		},
		{
			name:    "bare scalar is not an object",
			payload: `42`,
			ok:      false,
		},
		{
			name:    "top-level array is not an object",
			payload: `[1,2,3]`,
			ok:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := flatten([]byte(tt.payload))
			if ok != tt.ok {
				t.Fatalf("flatten() ok = %v, want %v", ok, tt.ok)
			}
			if !tt.ok {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("flatten() returned %d fields, want %d: %+v", len(got), len(tt.want), got)
			}
			for i, want := range tt.want {
				if got[i] != want {
					t.Errorf("field[%d] = %+v, want %+v", i, got[i], want)
				}
			}
		})
	}
}

func TestPartitionFor(t *testing.T) {
	ts := mustParseTime(t, "2026-08-28T23:59:59Z")
	if got := PartitionFor(ts); got != "2026-08" {
		t.Errorf("PartitionFor() = %q, want %q", got, "2026-08")
	}
}
