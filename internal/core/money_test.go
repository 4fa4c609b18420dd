package core

import (
	"errors"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"12.34", "12.34", true},
		{"12,34", "12.34", true},
		{"-200", "-200", true},
		{"+3.5", "3.5", true},
		{"0.001", "0.001", true}, // sub-cent precision is kept, never rounded
		{" 7 ", "7", true},
		{"", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Errorf("ParseAmount(%q): unexpected error %v", tc.in, err)
				continue
			}
			if !got.Equal(dec(tc.want)) {
				t.Errorf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("ParseAmount(%q): expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestParsePercentage(t *testing.T) {
	if got, err := ParsePercentage("33,5"); err != nil || !got.Equal(dec("33.5")) {
		t.Fatalf("got %s, %v", got, err)
	}
	for _, in := range []string{"-1", "100.01", "x"} {
		if _, err := ParsePercentage(in); !errors.Is(err, ErrInvalidPull) {
			t.Errorf("ParsePercentage(%q): expected ErrInvalidPull, got %v", in, err)
		}
	}
}
