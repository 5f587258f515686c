package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Parse decodes a JSON text into a Value, keeping object members in source
// order. Duplicate keys within one object are rejected.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return Value{}, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, errors.New("unexpected data after top-level value")
	}

	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			var items []Value

			for dec.More() {
				item, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}

				items = append(items, item)
			}

			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}

			return Value{kind: KindArray, items: items}, nil
		case '{':
			var members []Member

			seen := make(map[string]struct{})

			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}

				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T", keyTok)
				}

				if _, dup := seen[key]; dup {
					return Value{}, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
				}

				seen[key] = struct{}{}

				val, err := parseValue(dec)
				if err != nil {
					return Value{}, err
				}

				members = append(members, Member{Key: key, Value: val})
			}

			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}

			return Value{kind: KindObject, members: members}, nil
		default:
			return Value{}, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		return scalar(t)
	}
}

// scalar converts a non-delimiter token from a UseNumber decoder.
func scalar(tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return Value{}, fmt.Errorf("number %q: %w", t, err)
		}

		return Number(f), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, tok)
	}
}
