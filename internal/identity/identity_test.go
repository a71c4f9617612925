package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate_Accepts(t *testing.T) {
	valid := []string{
		"alice",
		"device_7",
		"A",
		"0123456789",
		"a_B_c_9",
		strings.Repeat("x", 64),
	}

	for _, id := range valid {
		if err := Validate(id); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", id, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"  alice ", "alice"},
		{"\talice\n", "alice"},
		{"a b", "a b"}, // interior whitespace is not trimmed
		{"", ""},
	}

	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidate_Rejects(t *testing.T) {
	invalid := []string{
		"",
		strings.Repeat("x", 65),
		"alice!",
		"has space",
		"dash-id",
		"päron",
		"a|b",
		"../etc",
	}

	for _, id := range invalid {
		err := Validate(id)
		if err == nil {
			t.Errorf("Validate(%q) = nil, want error", id)
			continue
		}
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Validate(%q) error %v does not wrap ErrInvalid", id, err)
		}
	}
}
