package intercept

import (
	"strings"
	"testing"
)

func TestDefaultKeyFormat(t *testing.T) {
	cases := []struct {
		name string
		inv  Invocation
		want string
	}{
		{"zero args", Invocation{Method: "listUsers"}, "listUsers"},
		{"single string", Invocation{Method: "getUser", Args: []any{"42"}}, "getUser:42"},
		{"multiple args", Invocation{Method: "find", Args: []any{"ann", 30}}, "find:ann_30"},
		{"nil arg", Invocation{Method: "getUser", Args: []any{nil}}, "getUser:null"},
		{"bool and float", Invocation{Method: "q", Args: []any{true, 1.5}}, "q:true_1.5"},
		{"slice", Invocation{Method: "batch", Args: []any{[]int{1, 2}}}, "batch:[1, 2]"},
		{"nested slice", Invocation{Method: "grid", Args: []any{[][]int{{1, 2}, {3}}}}, "grid:[[1, 2], [3]]"},
		{"string slice", Invocation{Method: "tags", Args: []any{[]string{"a", "b"}}}, "tags:[a, b]"},
	}
	for _, tc := range cases {
		if got := defaultKey(tc.inv); got != tc.want {
			t.Errorf("%s: defaultKey = %q, want %q", tc.name, got, tc.want)
		}
	}
}

// TestDefaultKeyMethodPrefixPreventsCollisions: identical args under two
// method names never produce the same key.
func TestDefaultKeyMethodPrefixPreventsCollisions(t *testing.T) {
	a := defaultKey(Invocation{Method: "getUser", Args: []any{"42"}})
	b := defaultKey(Invocation{Method: "deleteUser", Args: []any{"42"}})
	if a == b {
		t.Fatalf("colliding keys %q", a)
	}
}

func TestRenderArgFallback(t *testing.T) {
	type opaque struct{ a, b int }

	got := renderArg(opaque{1, 2})
	if !strings.HasPrefix(got, "opaque@") {
		t.Fatalf("struct fallback = %q, want opaque@<hash>", got)
	}
	// equal values hash identically, so the key is stable within a process
	if again := renderArg(opaque{1, 2}); again != got {
		t.Fatalf("unstable fallback: %q vs %q", got, again)
	}

	if got := renderArg((*opaque)(nil)); got != "null" {
		t.Fatalf("nil pointer = %q, want null", got)
	}
	ptr := renderArg(&opaque{1, 2})
	if !strings.HasPrefix(ptr, "opaque@") {
		t.Fatalf("pointer fallback = %q, want opaque@<addr>", ptr)
	}
}

func TestRenderArgMap(t *testing.T) {
	got := renderArg(map[string]int{"a": 1})
	if got != "map[a:1]" {
		t.Fatalf("map rendering = %q", got)
	}
}
