package intercept

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
)

// defaultKey derives a cache key from the method name and arguments when no
// key expression was declared. The method name prefix guarantees two
// different methods never collide on identical argument values.
//
// Format: "method" for zero-argument calls, else "method:arg1_arg2_...".
func defaultKey(inv Invocation) string {
	if len(inv.Args) == 0 {
		return inv.Method
	}
	var b strings.Builder
	b.WriteString(inv.Method)
	b.WriteByte(':')
	for i, arg := range inv.Args {
		if i > 0 {
			b.WriteByte('_')
		}
		b.WriteString(renderArg(arg))
	}
	return b.String()
}

// renderArg serializes one argument for key construction: nil -> "null",
// strings verbatim, numbers/bools/runes in their natural form, arrays and
// slices deep-rendered element-wise, maps in their natural rendering.
// Anything else falls back to Type@hash - process-local and unstable across
// restarts, so callers with complex arguments should declare an explicit
// key expression instead.
func renderArg(arg any) string {
	if arg == nil {
		return "null"
	}
	if s, ok := arg.(string); ok {
		return s
	}

	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%v", arg)
	case reflect.Array, reflect.Slice:
		return renderSequence(rv)
	case reflect.Map:
		return fmt.Sprintf("%v", arg)
	case reflect.Pointer:
		if rv.IsNil() {
			return "null"
		}
	}
	return fmt.Sprintf("%s@%x", typeName(arg), identity(rv))
}

// renderSequence renders arrays/slices recursively, nested sequences
// included.
func renderSequence(rv reflect.Value) string {
	var b strings.Builder
	b.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		el := rv.Index(i)
		switch el.Kind() {
		case reflect.Array, reflect.Slice:
			b.WriteString(renderSequence(el))
		default:
			b.WriteString(renderArg(el.Interface()))
		}
	}
	b.WriteByte(']')
	return b.String()
}

// identity is a process-local identity stand-in: the address for reference
// kinds, a content hash otherwise.
func identity(rv reflect.Value) uint64 {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return uint64(rv.Pointer())
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%#v", rv.Interface())
	return h.Sum64()
}

func typeName(arg any) string {
	t := reflect.TypeOf(arg)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
