package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/dmitrijs2005/fintrack/internal/common"
)

// Document is a record ready to be written: its encoded form, a generic
// decoded form for key path evaluation, and its primary key.
type Document struct {
	Key   string
	Raw   []byte
	Value any
}

// NewDocument encodes doc and extracts the primary key of s from it.
func NewDocument(s *Store, doc any) (*Document, error) {
	var raw []byte
	switch d := doc.(type) {
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %s record: %w", common.ErrStorage, s.Name, err)
		}
		raw = b
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: decode %s record: %w", common.ErrStorage, s.Name, err)
	}
	if _, ok := value.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: %s record is not an object", common.ErrStorage, s.Name)
	}

	key, ok := Lookup(value, s.KeyPath).(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("%w: %s record has no %q", common.ErrStorage, s.Name, s.KeyPath)
	}

	return &Document{Key: key, Raw: raw, Value: value}, nil
}

// Lookup evaluates a dotted key path against a decoded JSON value. Missing
// members yield nil.
func Lookup(value any, path string) any {
	v, err := jsonpath.Get("$."+path, value)
	if err != nil {
		return nil
	}
	return v
}

// IndexKey returns the values of ix's fields in value.
func IndexKey(ix *Index, value any) []any {
	key := make([]any, len(ix.Fields))
	for i, f := range ix.Fields {
		key[i] = Lookup(value, f.Path)
	}
	return key
}

// Normalize converts a query argument into the form its JSON encoding
// takes inside a stored document: times become UTC RFC 3339 text, every
// numeric kind becomes float64, and named string or bool types lose their
// name. Slices are normalized element-wise.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	case json.Number:
		f, _ := t.Float64()
		return f
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	default:
		return v
	}
}

// NormalizeAll applies Normalize to each value.
func NormalizeAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}

// CheckArity reports an error when a query supplies more values than ix
// has key paths, or none at all for an equality query.
func CheckArity(ix *Index, n int, exact bool) error {
	if n > len(ix.Fields) || (exact && n != len(ix.Fields)) {
		return fmt.Errorf("%w: index %s takes %d values, got %d", common.ErrStorage, ix.Name, len(ix.Fields), n)
	}
	return nil
}

// Describe formats a key for error messages.
func Describe(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
