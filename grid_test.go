package devpoll

import (
	"strings"
	"testing"
)

// =============================================================================
// Phase 1: Cartesian Product Tests
// =============================================================================

func TestCartesianProduct_TwoDimensions(t *testing.T) {
	dims := map[string][]string{
		"x": {"a", "b"},
		"y": {"1", "2"},
	}

	result := cartesianProduct(dims)

	if len(result) != 4 {
		t.Fatalf("cartesianProduct() returned %d combinations, want 4", len(result))
	}

	// verify sorted key order (x, y) and preserved value order
	expected := []map[string]string{
		{"x": "a", "y": "1"},
		{"x": "a", "y": "2"},
		{"x": "b", "y": "1"},
		{"x": "b", "y": "2"},
	}

	for i, want := range expected {
		if result[i]["x"] != want["x"] || result[i]["y"] != want["y"] {
			t.Errorf("combination[%d] = %v, want %v", i, result[i], want)
		}
	}
}

func TestCartesianProduct_SingleDimension(t *testing.T) {
	dims := map[string][]string{
		"env": {"prod", "staging", "dev"},
	}

	result := cartesianProduct(dims)

	if len(result) != 3 {
		t.Fatalf("cartesianProduct() returned %d combinations, want 3", len(result))
	}

	// verify order preserved
	expected := []string{"prod", "staging", "dev"}
	for i, want := range expected {
		if result[i]["env"] != want {
			t.Errorf("combination[%d][env] = %v, want %v", i, result[i]["env"], want)
		}
	}
}

func TestCartesianProduct_ThreeDimensions(t *testing.T) {
	dims := map[string][]string{
		"a": {"1", "2"},
		"b": {"x", "y"},
		"c": {"p", "q"},
	}

	result := cartesianProduct(dims)

	if len(result) != 8 {
		t.Fatalf("cartesianProduct() returned %d combinations, want 8 (2x2x2)", len(result))
	}

	// verify first combination uses sorted key order (a, b, c)
	first := result[0]
	if first["a"] != "1" || first["b"] != "x" || first["c"] != "p" {
		t.Errorf("first combination = %v, want {a:1, b:x, c:p}", first)
	}
}

func TestCartesianProduct_EmptyDimension(t *testing.T) {
	dims := map[string][]string{
		"x": {},
	}

	result := cartesianProduct(dims)

	if len(result) != 0 {
		t.Errorf("cartesianProduct() with empty dimension returned %d combinations, want 0", len(result))
	}
}

func TestCartesianProduct_EmptyMap(t *testing.T) {
	dims := map[string][]string{}

	result := cartesianProduct(dims)

	if len(result) != 0 {
		t.Errorf("cartesianProduct() with empty map returned %d combinations, want 0", len(result))
	}
}

func TestCartesianProduct_DeterministicOrder(t *testing.T) {
	dims := map[string][]string{
		"z": {"3", "4"},
		"a": {"1", "2"},
	}

	// run 100 times and verify identical output
	var first []map[string]string
	for i := 0; i < 100; i++ {
		result := cartesianProduct(dims)
		if first == nil {
			first = result
			continue
		}

		if len(result) != len(first) {
			t.Fatalf("iteration %d: length changed from %d to %d", i, len(first), len(result))
		}

		for j := range first {
			if result[j]["a"] != first[j]["a"] || result[j]["z"] != first[j]["z"] {
				t.Fatalf("iteration %d: combination[%d] differs: %v vs %v", i, j, result[j], first[j])
			}
		}
	}
}

func TestCartesianProduct_PreservesValueOrder(t *testing.T) {
	// values are NOT in alphabetical order
	dims := map[string][]string{
		"env": {"prod", "staging", "dev"},
	}

	result := cartesianProduct(dims)

	if len(result) != 3 {
		t.Fatalf("cartesianProduct() returned %d combinations, want 3", len(result))
	}

	// should preserve slice order, not sort values
	expected := []string{"prod", "staging", "dev"}
	for i, want := range expected {
		if result[i]["env"] != want {
			t.Errorf("value order not preserved: combination[%d][env] = %v, want %v", i, result[i]["env"], want)
		}
	}
}

func TestWithDimensions_Validation(t *testing.T) {
	tests := []struct {
		name    string
		dims    map[string][]string
		wantErr string
	}{
		{"valid", map[string][]string{"zone": {"1", "2"}}, ""},
		{"empty map", map[string][]string{}, "at least one dimension"},
		{"no values", map[string][]string{"zone": {}}, "has no values"},
		{"empty value", map[string][]string{"zone": {"1", ""}}, "empty value at index 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithDimensions(tt.dims)(&gridConfig{})
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("WithDimensions() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("WithDimensions() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewCommandGrid_Basic(t *testing.T) {
	commands, err := NewCommandGrid("zone",
		WithURLTemplate("http://device/cmd?zone={{.zone}}&out={{.out}}"),
		WithDimensions(map[string][]string{
			"zone": {"1", "2"},
			"out":  {"a", "b"},
		}),
	)
	if err != nil {
		t.Fatalf("NewCommandGrid() error = %v", err)
	}
	if len(commands) != 4 {
		t.Fatalf("NewCommandGrid() returned %d commands, want 4", len(commands))
	}

	targets := make(map[string]bool)
	for _, c := range commands {
		if targets[c.Target()] {
			t.Errorf("duplicate target: %s", c.Target())
		}
		targets[c.Target()] = true
		if c.Repeat() {
			t.Errorf("command %s repeats without WithGridRepeat", c.Target())
		}
	}

	// sorted keys: out, zone
	if commands[0].URL() != "http://device/cmd?zone=1&out=a" {
		t.Errorf("URL() = %v", commands[0].URL())
	}
	if commands[0].Target() != "zone (a/1)" {
		t.Errorf("Target() = %v, want %v", commands[0].Target(), "zone (a/1)")
	}
}

func TestNewCommandGrid_Templates(t *testing.T) {
	commands, err := NewCommandGrid("ignored",
		WithURLTemplate("http://device/cmd"),
		WithPayloadTemplate("ZONE={{.zone}}&CMD=STATUS"),
		WithTargetTemplate("zone-{{.zone}}"),
		WithDimensions(map[string][]string{"zone": {"1 a"}}),
		WithGridRepeat(),
	)
	if err != nil {
		t.Fatalf("NewCommandGrid() error = %v", err)
	}
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}

	c := commands[0]
	if c.Payload() != "ZONE=1+a&CMD=STATUS" {
		t.Errorf("Payload() = %q, want query-escaped value", c.Payload())
	}
	if c.Target() != "zone-1 a" {
		t.Errorf("Target() = %q, want raw value", c.Target())
	}
	if !c.Repeat() {
		t.Error("Repeat() = false, want true")
	}
}

func TestNewCommandGrid_URLEncoding(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{"space", "hello world", "hello+world"},
		{"ampersand", "a&b", "a%26b"},
		{"equals", "a=b", "a%3Db"},
		{"question", "a?b", "a%3Fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commands, err := NewCommandGrid("q",
				WithURLTemplate("http://device/cmd?q={{.q}}"),
				WithDimensions(map[string][]string{"q": {tt.value}}),
			)
			if err != nil {
				t.Fatalf("NewCommandGrid() error = %v", err)
			}

			want := "http://device/cmd?q=" + tt.expected
			if commands[0].URL() != want {
				t.Errorf("URL() = %v, want %v", commands[0].URL(), want)
			}
		})
	}
}

func TestNewCommandGrid_Errors(t *testing.T) {
	dims := WithDimensions(map[string][]string{"zone": {"1"}})

	tests := []struct {
		name    string
		base    string
		opts    []GridOption
		wantErr string
	}{
		{"empty base", " ", []GridOption{WithURLTemplate("http://d"), dims}, "base target"},
		{"missing template", "z", []GridOption{dims}, "URL template required"},
		{"missing dimensions", "z", []GridOption{WithURLTemplate("http://d")}, "at least one dimension"},
		{"bad syntax", "z", []GridOption{WithURLTemplate("http://d/{{.zone"), dims}, "invalid URL template"},
		{"missing key", "z", []GridOption{WithURLTemplate("http://d/{{.other}}"), dims}, "template execution failed"},
		{"bad payload", "z", []GridOption{WithURLTemplate("http://d"), WithPayloadTemplate("{{"), dims}, "invalid payload template"},
		{"no scheme", "z", []GridOption{WithURLTemplate("device/{{.zone}}"), dims}, "failed to create command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommandGrid(tt.base, tt.opts...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewCommandGrid() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
