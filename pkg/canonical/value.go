// Package canonical encodes JSON documents into a single byte-exact form.
//
// Documents are built as Value trees (object, array, string, number, bool,
// null). Marshal sorts object keys by byte order, writes numbers in their
// shortest round-trip form and emits no insignificant whitespace, so two
// logically equal documents always produce the same bytes regardless of how
// they were assembled in memory.
package canonical

import (
	"errors"
	"fmt"
)

// Encoding errors.
var (
	ErrNonFiniteNumber = errors.New("number is NaN or infinite")
	ErrInvalidUTF8     = errors.New("string is not valid UTF-8")
	ErrDuplicateKey    = errors.New("duplicate object key")
	ErrUnsupportedType = errors.New("unsupported value type")
)

// Kind identifies the variant held by a Value.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Member is one key/value pair of an object. Members keep the order they
// were added in; Marshal sorts them.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	boolean bool
	number  float64
	str     string
	items   []Value
	members []Member
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Number wraps a float64. Non-finite numbers are rejected at Marshal time.
func Number(f float64) Value { return Value{kind: KindNumber, number: f} }

// Int wraps an integer.
func Int(i int64) Value { return Value{kind: KindNumber, number: float64(i)} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array builds an array from items. The slice is copied.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value(nil), items...)}
}

// Strings builds an array of strings.
func Strings(ss []string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}

	return Value{kind: KindArray, items: items}
}

// Object builds an object from members. The slice is copied.
func Object(members ...Member) Value {
	return Value{kind: KindObject, members: append([]Member(nil), members...)}
}

// Field is shorthand for a Member literal.
func Field(key string, v Value) Member {
	return Member{Key: key, Value: v}
}

// Kind reports the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.number, v.kind == KindNumber }

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// Items returns a copy of the array items, or nil when v is not an array.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}

	return append([]Value(nil), v.items...)
}

// Members returns a copy of the object members in insertion order, or nil
// when v is not an object.
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}

	return append([]Member(nil), v.members...)
}

// Len returns the number of array items or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	default:
		return 0
	}
}

// Get looks up key in an object. The last member wins if a key repeats.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}

	for i := len(v.members) - 1; i >= 0; i-- {
		if v.members[i].Key == key {
			return v.members[i].Value, true
		}
	}

	return Value{}, false
}

// ObjectBuilder accumulates members for an object value.
type ObjectBuilder struct {
	members []Member
}

// NewObject starts an empty object.
func NewObject() *ObjectBuilder {
	return &ObjectBuilder{}
}

// Set adds a member.
func (b *ObjectBuilder) Set(key string, v Value) *ObjectBuilder {
	b.members = append(b.members, Member{Key: key, Value: v})
	return b
}

// SetString adds a string member.
func (b *ObjectBuilder) SetString(key, s string) *ObjectBuilder {
	return b.Set(key, String(s))
}

// SetOptional adds a string member only when s is non-nil.
func (b *ObjectBuilder) SetOptional(key string, s *string) *ObjectBuilder {
	if s == nil {
		return b
	}

	return b.Set(key, String(*s))
}

// SetRef adds a {"@id": id} reference member.
func (b *ObjectBuilder) SetRef(key, id string) *ObjectBuilder {
	return b.Set(key, Ref(id))
}

// Value returns the object built so far.
func (b *ObjectBuilder) Value() Value {
	return Object(b.members...)
}

// Ref builds a JSON-LD node reference.
func Ref(id string) Value {
	return Object(Field("@id", String(id)))
}
