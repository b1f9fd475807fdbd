// Package normalize turns arbitrary backend results into values built only from
// maps, slices, strings, numbers, booleans and nil, so nothing opaque reaches the wire.
package normalize

import (
	"encoding/json"
	"fmt"
	"reflect"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/macbridge/api/schemas"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Value normalizes v. Exportable values use their own export; plain values
// pass through untouched; structs are flattened to a field map; anything the
// codec cannot represent falls back to its printed form.
func Value(v interface{}) (out interface{}) {
	defer func() {
		// Export and reflection both run foreign code. A panic there must not
		// escape the normalizer.
		if r := recover(); r != nil {
			out = fmt.Sprintf("%v", v)
		}
	}()

	switch tv := v.(type) {
	case nil:
		return nil
	case schemas.Exportable:
		return tv.Export()
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return tv
	case json.RawMessage:
		return tv
	case map[string]interface{}, []interface{}:
		return tv
	}

	return fieldBag(v)
}

// fieldBag is the fallback for values with no export: round trip through the
// codec so exported fields and json tags decide the shape.
func fieldBag(v interface{}) interface{} {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Sprintf("%v", v)
	}

	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var plain interface{}
	if err := codec.Unmarshal(data, &plain); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return plain
}
