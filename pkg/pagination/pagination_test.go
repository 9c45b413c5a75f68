package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	cases := []struct {
		name  string
		input int
		want  int
	}{
		{"zero falls back to default", 0, DefaultLimit},
		{"negative falls back to default", -3, DefaultLimit},
		{"in range passes through", 40, 40},
		{"over max is capped", 500, MaxLimit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeLimit(tc.input); got != tc.want {
				t.Fatalf("expected %d got %d", tc.want, got)
			}
		})
	}
}

func TestLimitWithBuffer(t *testing.T) {
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected 11 got %d", got)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	cursor := Cursor{CreatedAt: time.Now().UTC().Truncate(time.Microsecond), ID: uuid.New()}

	parsed, err := ParseCursor(EncodeCursor(cursor))
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if !parsed.CreatedAt.Equal(cursor.CreatedAt) {
		t.Fatalf("expected %s got %s", cursor.CreatedAt, parsed.CreatedAt)
	}
	if parsed.ID != cursor.ID {
		t.Fatalf("expected %s got %s", cursor.ID, parsed.ID)
	}
}

func TestParseCursorEmpty(t *testing.T) {
	parsed, err := ParseCursor("  ")
	if err != nil {
		t.Fatalf("expected nil error got %v", err)
	}
	if parsed != nil {
		t.Fatalf("expected nil cursor got %+v", parsed)
	}
}

func TestParseCursorGarbage(t *testing.T) {
	if _, err := ParseCursor("not-base64!!"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := ParseCursor("bm8tcGlwZQ=="); err == nil {
		t.Fatal("expected error for missing separator")
	}
}
