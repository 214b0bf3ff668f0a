package store

import "testing"

func TestMarshalShape(t *testing.T) {
	tests := []struct {
		shape []int
		want  string
	}{
		{nil, ""},
		{[]int{5}, "5"},
		{[]int{2, 3, 4}, "2x3x4"},
	}
	for _, tt := range tests {
		if got := marshalShape(tt.shape); got != tt.want {
			t.Errorf("marshalShape(%v) = %q, want %q", tt.shape, got, tt.want)
		}
		back, err := unmarshalShape(tt.want)
		if err != nil {
			t.Fatalf("unmarshalShape(%q) failed: %v", tt.want, err)
		}
		if len(back) != len(tt.shape) {
			t.Errorf("round trip of %v gave %v", tt.shape, back)
		}
	}
}

func TestUnmarshalShape_Invalid(t *testing.T) {
	if _, err := unmarshalShape("2xtwo"); err == nil {
		t.Error("expected error for non-numeric dimension")
	}
}

func TestUnmarshalWords_BadLength(t *testing.T) {
	if _, err := unmarshalWords([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated word blob")
	}
}

func TestMarshalValues_RoundTrip(t *testing.T) {
	values := []float64{0, -1.5, 3.25e9}
	back, err := unmarshalValues(marshalValues(values))
	if err != nil {
		t.Fatalf("unmarshalValues failed: %v", err)
	}
	for n, v := range values {
		if back[n] != v {
			t.Errorf("value %d = %v, want %v", n, back[n], v)
		}
	}
}

func TestNormKey(t *testing.T) {
	if normKey("café") != "café" {
		t.Error("combining accent was not composed")
	}
	if normKey("plain") != "plain" {
		t.Error("ascii key changed")
	}
}
