package verifierquorum

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// CanonicalBytes renders publicInputs as deterministic JSON: object
// keys sorted, no whitespace, and no floating point values. The same
// tuple always yields the same bytes, so every circuit in this repo
// shares one canonicalization.
func CanonicalBytes(publicInputs interface{}) ([]byte, error) {
	normalized, err := normalize(publicInputs)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := encode(&buf, normalized); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize round-trips through encoding/json to get a generic
// representation (map[string]interface{}, []interface{}, or
// primitive), so struct field tags and types are resolved uniformly.
func normalize(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case float64:
		// encoding/json decodes all JSON numbers as float64; reject any
		// input that isn't integral so canonical bytes never depend on
		// floating-point formatting.
		if val != float64(int64(val)) {
			return privacyerr.ErrMalformedInput
		}
		intBytes, _ := json.Marshal(int64(val))
		buf.Write(intBytes)
		return nil

	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		return nil
	}
}
