package telemetry

import (
	"bytes"
	"encoding/json"
	"sort"
)

// field is one flattened observation extracted from a payload.
type field struct {
	name  string
	typ   string
	value string

	// hasValue is false for null fields: the key is still registered
	// but no value row is written.
	hasValue bool
}

// flatten parses payload as a JSON object and walks it into dotted key
// paths. Returns ok=false when the payload is not a JSON object; the
// caller then falls back to opaque-scalar handling.
func flatten(payload []byte) ([]field, bool) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, false
	}

	var fields []field
	for _, name := range sortedNames(root) {
		walk(name, root[name], &fields)
	}
	return fields, true
}

func walk(name string, v any, out *[]field) {
	switch val := v.(type) {
	case map[string]any:
		for _, child := range sortedNames(val) {
			walk(name+"."+child, val[child], out)
		}
	case []any:
		// Arrays are one key of type array, re-serialized whole.
		b, err := json.Marshal(val)
		if err != nil {
			return
		}
		*out = append(*out, field{name: name, typ: TypeArray, value: string(b), hasValue: true})
	case json.Number:
		*out = append(*out, field{name: name, typ: TypeNumber, value: val.String(), hasValue: true})
	case string:
		*out = append(*out, field{name: name, typ: TypeString, value: val, hasValue: true})
	case bool:
		value := "false"
		if val {
			value = "true"
		}
		*out = append(*out, field{name: name, typ: TypeBoolean, value: value, hasValue: true})
	case nil:
		*out = append(*out, field{name: name, typ: TypeNull})
	}
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
