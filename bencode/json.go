package bencode

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// ToJSONValue converts a decoded Value into a tree of plain Go values
// suitable for encoding/json.Marshal: ByteString becomes a string (UTF-8
// text as-is, otherwise base64, since JSON strings cannot carry arbitrary
// bytes), Integer becomes int64, List becomes []any and Dictionary becomes
// map[string]any.
//
// This is a display-only transformation. It is never used on the
// info-hash path: that path always goes through Literal, which preserves
// byte-exact canonical bencode, not JSON's lossy string representation of
// non-UTF-8 byte strings.
func ToJSONValue(v Value) (any, error) {
	switch t := v.(type) {
	case *ByteString:
		s := string(*t)
		if utf8.ValidString(s) {
			return s, nil
		}
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	case *Integer:
		return int64(*t), nil
	case *List:
		out := make([]any, 0, len(*t))
		for _, elem := range *t {
			jv, err := ToJSONValue(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, jv)
		}
		return out, nil
	case *Dictionary:
		out := make(map[string]any, len(t.Dict))
		for k, elem := range t.Dict {
			jv, err := ToJSONValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = jv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("bencode: unknown value type %T", v)
	}
}
