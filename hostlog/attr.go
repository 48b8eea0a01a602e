package hostlog

import (
	"reflect"
)

// Attr reads a value attribute from an untrusted host object: a map entry, an
// exported struct field or a method taking no arguments and returning one
// value, in that order. It never panics; any failure reports false.
func Attr(target any, name string) (value any, ok bool) {
	defer func() {
		if recover() != nil {
			value, ok = nil, false
		}
	}()
	if target == nil || name == "" {
		return nil, false
	}
	v := reflect.ValueOf(target)
	if isNilValue(v) {
		return nil, false
	}
	exported := exportedName(name)

	inner := v
	for inner.Kind() == reflect.Pointer || inner.Kind() == reflect.Interface {
		if inner.IsNil() {
			return nil, false
		}
		inner = inner.Elem()
	}

	switch inner.Kind() {
	case reflect.Map:
		keyType := inner.Type().Key()
		if keyType.Kind() == reflect.String {
			for _, key := range []string{name, exported} {
				if e := inner.MapIndex(reflect.ValueOf(key).Convert(keyType)); e.IsValid() {
					return unwrap(e)
				}
			}
		}
	case reflect.Struct:
		if f := inner.FieldByName(exported); f.IsValid() && f.CanInterface() && f.Kind() != reflect.Func {
			return unwrap(f)
		}
	}

	if m := v.MethodByName(exported); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() == 1 {
		return unwrap(m.Call(nil)[0])
	}
	return nil, false
}

func unwrap(v reflect.Value) (any, bool) {
	if !v.IsValid() || isNilValue(v) {
		return nil, false
	}
	return v.Interface(), true
}
