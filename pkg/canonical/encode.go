package canonical

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

// Marshal returns the canonical encoding of v.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v, "$"); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v Value, path string) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		s, err := FormatNumber(v.number)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		buf.WriteString(s)
	case KindString:
		if err := writeString(buf, v.str); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	case KindArray:
		buf.WriteByte('[')

		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}

			if err := encode(buf, item, path+"["+strconv.Itoa(i)+"]"); err != nil {
				return err
			}
		}

		buf.WriteByte(']')
	case KindObject:
		return encodeObject(buf, v.members, path)
	default:
		return fmt.Errorf("%s: %w: %s", path, ErrUnsupportedType, v.kind)
	}

	return nil
}

func encodeObject(buf *bytes.Buffer, members []Member, path string) error {
	sorted := append([]Member(nil), members...)
	// Go string comparison is byte-wise, which is the order we publish.
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	buf.WriteByte('{')

	for i, m := range sorted {
		if i > 0 {
			if sorted[i-1].Key == m.Key {
				return fmt.Errorf("%s: %w: %q", path, ErrDuplicateKey, m.Key)
			}

			buf.WriteByte(',')
		}

		if err := writeString(buf, m.Key); err != nil {
			return fmt.Errorf("%s key: %w", path, err)
		}

		buf.WriteByte(':')

		if err := encode(buf, m.Value, path+"."+m.Key); err != nil {
			return err
		}
	}

	buf.WriteByte('}')

	return nil
}

// writeString emits s with the short escapes for quote, backslash and the
// common control characters, \u00xx for the remaining C0 controls and every
// other code point as literal UTF-8.
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return ErrInvalidUTF8
	}

	buf.WriteByte('"')

	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexDigits[r>>4])
				buf.WriteByte(hexDigits[r&0xf])

				continue
			}

			buf.WriteRune(r)
		}
	}

	buf.WriteByte('"')

	return nil
}

// FormatNumber renders f the way ECMAScript Number.prototype.toString does:
// the shortest digit string that round-trips, plain notation for decimal
// exponents in [-6, 21), exponent notation otherwise.
func FormatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", ErrNonFiniteNumber
	}

	if f == 0 {
		// Covers negative zero as well.
		return "0", nil
	}

	neg := f < 0
	if neg {
		f = -f
	}

	mantissa, expPart, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	exp, err := strconv.Atoi(expPart)
	if err != nil {
		return "", fmt.Errorf("parsing exponent %q: %w", expPart, err)
	}

	digits := strings.Replace(mantissa, ".", "", 1)
	k := len(digits)
	n := exp + 1

	var out string

	switch {
	case k <= n && n <= 21:
		out = digits + strings.Repeat("0", n-k)
	case 0 < n && n <= 21:
		out = digits[:n] + "." + digits[n:]
	case -6 < n && n <= 0:
		out = "0." + strings.Repeat("0", -n) + digits
	default:
		e := n - 1
		sign := "+"

		if e < 0 {
			sign = "-"
			e = -e
		}

		if k == 1 {
			out = digits + "e" + sign + strconv.Itoa(e)
		} else {
			out = digits[:1] + "." + digits[1:] + "e" + sign + strconv.Itoa(e)
		}
	}

	if neg {
		out = "-" + out
	}

	return out, nil
}
