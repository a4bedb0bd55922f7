package storage

import (
	"testing"
	"time"
)

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", " alice01 ", "alice01"},
		{"bytes", []byte("7294831045"), "7294831045"},
		{"int64", int64(42), "42"},
		{"int", 42, "42"},
		{"float fallback", 7.0, "7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeKey(tc.in); got != tc.want {
				t.Fatalf("NormalizeKey(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeValue(t *testing.T) {
	t.Parallel()

	ts := time.Date(2023, 5, 1, 10, 0, 0, 0, time.FixedZone("ICT", 7*3600))

	cases := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "hello", "hello"},
		{"bytes to string", []byte("hello"), "hello"},
		{"int to int64", int(5), int64(5)},
		{"int32 to int64", int32(5), int64(5)},
		{"integral float to int64", float64(10), int64(10)},
		{"fractional float stays", 10.5, 10.5},
		{"bool true", true, int64(1)},
		{"bool false", false, int64(0)},
		{"time to rfc3339 utc", ts, "2023-05-01T03:00:00Z"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeValue(tc.in); got != tc.want {
				t.Fatalf("NormalizeValue(%v) = %v (%T), want %v (%T)", tc.in, got, got, tc.want, tc.want)
			}
		})
	}
}

func TestEqualValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b []any
		want bool
	}{
		{"identical", []any{"a", int64(1)}, []any{"a", int64(1)}, true},
		{"cross type int", []any{int64(1)}, []any{int32(1)}, true},
		{"bytes vs string", []any{[]byte("x")}, []any{"x"}, true},
		{"nil vs nil", []any{nil}, []any{nil}, true},
		{"nil vs empty string", []any{nil}, []any{""}, false},
		{"different value", []any{"a"}, []any{"b"}, false},
		{"length mismatch", []any{"a"}, []any{"a", "b"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := EqualValues(tc.a, tc.b); got != tc.want {
				t.Fatalf("EqualValues(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
