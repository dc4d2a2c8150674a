package service

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"

	"github.com/berfenger/e3dc2mqtt/internal/core/domain"
	"github.com/berfenger/e3dc2mqtt/pkg/e3dc"
)

const redactedMarker = "<redacted>"

var redactKeyRegexp = regexp.MustCompile(`(?i)(system-mac|macAddress|mac|serial)`)

// Redact returns a copy of v where values under identifying keys keep only
// their first 3 characters. Structs are converted to maps first.
func Redact(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case domain.Snapshot:
		return redactMap(t)
	case e3dc.RawData:
		return redactMap(t)
	case map[string]any:
		return redactMap(t)
	case []any:
		res := make([]any, len(t))
		for i, item := range t {
			res[i] = Redact(item)
		}
		return res
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[fmt.Sprint(iter.Key().Interface())] = iter.Value().Interface()
		}
		return redactMap(m)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		res := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			res[i] = Redact(rv.Index(i).Interface())
		}
		return res
	case reflect.Struct, reflect.Pointer:
		if rv.Kind() == reflect.Pointer && (rv.IsNil() || rv.Elem().Kind() != reflect.Struct) {
			return v
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var m any
		if err := json.Unmarshal(raw, &m); err != nil {
			return v
		}
		return Redact(m)
	}
	return v
}

func redactMap(m map[string]any) map[string]any {
	res := make(map[string]any, len(m))
	for k, v := range m {
		if redactKeyRegexp.MatchString(k) && isScalar(v) {
			res[k] = redactValue(v)
			continue
		}
		res[k] = Redact(v)
	}
	return res
}

func redactValue(v any) any {
	if v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	if len(s) > 3 {
		s = s[:3]
	}
	return s + redactedMarker
}
