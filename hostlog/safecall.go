// Package hostlog talks to whatever logging object the host environment hands
// over. Nothing about that object is trusted: every capability is checked
// before use and any failure is diverted to a fallback channel on stdout.
package hostlog

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"unicode"

	"github.com/rs/zerolog"
)

// Fallback receives the arguments of a call that could not be delegated.
type Fallback func(method string, args []any)

// DefaultFallback writes "[LEVEL] message" lines to stdout.
var DefaultFallback = NewWriterFallback(os.Stdout)

// NewWriterFallback returns a Fallback that prints to w through a plain zerolog console writer.
func NewWriterFallback(w io.Writer) Fallback {
	out := zerolog.New(zerolog.ConsoleWriter{
		Out:          w,
		NoColor:      true,
		PartsOrder:   []string{zerolog.LevelFieldName, zerolog.MessageFieldName},
		FormatLevel: func(i any) string {
			if s, ok := i.(string); ok && s != "" {
				return "[" + strings.ToUpper(s) + "]"
			}
			return "[LOG]"
		},
		PartsExclude: []string{zerolog.TimestampFieldName},
	})
	return func(method string, args []any) {
		out.WithLevel(levelFor(method)).Msg(joinArgs(args))
	}
}

// SafeCall invokes method on target with args when target is present, has a
// capability of that name and the capability is callable with args. In every
// other case, including a panic inside the call, fallback runs instead.
// SafeCall never panics and runs exactly one of the two. It reports whether
// the call was delegated.
func SafeCall(target any, method string, args []any, fallback Fallback) bool {
	if tryCall(target, method, args) {
		return true
	}
	runFallback(fallback, method, args)
	return false
}

// Supports reports whether target exposes a callable capability named method.
func Supports(target any, method string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_, ok = lookup(target, method)
	return ok
}

func tryCall(target any, method string, args []any) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	fn, found := lookup(target, method)
	if !found {
		return false
	}
	in, accepted := convertArgs(fn.Type(), args)
	if !accepted {
		return false
	}
	fn.Call(in)
	return true
}

func runFallback(fallback Fallback, method string, args []any) {
	defer func() {
		// last resort: the fallback channel itself failed
		_ = recover()
	}()
	if fallback == nil {
		fallback = DefaultFallback
	}
	fallback(method, args)
}

// lookup resolves method on target as an exported method, a map entry or a
// struct field of func kind, in that order.
func lookup(target any, method string) (reflect.Value, bool) {
	if target == nil || method == "" {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(target)
	if isNilValue(v) {
		return reflect.Value{}, false
	}

	exported := exportedName(method)
	if m := v.MethodByName(exported); m.IsValid() {
		return callable(m)
	}

	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		keyType := v.Type().Key()
		if keyType.Kind() != reflect.String {
			return reflect.Value{}, false
		}
		for _, name := range []string{method, exported} {
			if e := v.MapIndex(reflect.ValueOf(name).Convert(keyType)); e.IsValid() {
				return callable(e)
			}
		}
	case reflect.Struct:
		if f := v.FieldByName(exported); f.IsValid() && f.CanInterface() {
			return callable(f)
		}
	}
	return reflect.Value{}, false
}

func callable(v reflect.Value) (reflect.Value, bool) {
	for v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Func || v.IsNil() {
		return reflect.Value{}, false
	}
	return v, true
}

// convertArgs fits args to the signature of fn. Values are passed as-is when
// assignable, converted between types of the same kind, and rendered with
// fmt.Sprint for string parameters.
func convertArgs(fnType reflect.Type, args []any) ([]reflect.Value, bool) {
	numIn := fnType.NumIn()
	variadic := fnType.IsVariadic()
	if (!variadic && len(args) != numIn) || (variadic && len(args) < numIn-1) {
		return nil, false
	}

	in := make([]reflect.Value, 0, len(args))
	for i, arg := range args {
		var paramType reflect.Type
		if variadic && i >= numIn-1 {
			paramType = fnType.In(numIn - 1).Elem()
		} else {
			paramType = fnType.In(i)
		}
		v, ok := convertArg(arg, paramType)
		if !ok {
			return nil, false
		}
		in = append(in, v)
	}
	return in, true
}

func convertArg(arg any, paramType reflect.Type) (reflect.Value, bool) {
	if arg == nil {
		switch paramType.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(paramType), true
		}
		return reflect.Value{}, false
	}
	av := reflect.ValueOf(arg)
	switch {
	case av.Type().AssignableTo(paramType):
		return av, true
	case av.Kind() == paramType.Kind() && av.Type().ConvertibleTo(paramType):
		return av.Convert(paramType), true
	case paramType.Kind() == reflect.String:
		return reflect.ValueOf(fmt.Sprint(arg)).Convert(paramType), true
	}
	return reflect.Value{}, false
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func exportedName(method string) string {
	r := []rune(method)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func levelFor(method string) zerolog.Level {
	switch strings.ToLower(method) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.NoLevel
}

func joinArgs(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}
