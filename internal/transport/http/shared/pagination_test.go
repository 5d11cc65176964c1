package shared

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", 50, 0},
		{"explicit", "limit=10&offset=30", 10, 30},
		{"clamped to max", "limit=9999", 200, 0},
		{"junk falls back", "limit=abc&offset=-5", 50, 0},
		{"zero limit falls back", "limit=0", 50, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/?"+tc.query, nil)
			page := ParsePagination(req, 50, 200)
			if page.Limit != tc.wantLimit || page.Offset != tc.wantOffset {
				t.Fatalf("got limit=%d offset=%d, want limit=%d offset=%d",
					page.Limit, page.Offset, tc.wantLimit, tc.wantOffset)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	if got, err := ParseDate("2026-03-31"); err != nil || got.Format("2006-01-02") != "2026-03-31" {
		t.Fatalf("bare date: got %v, err %v", got, err)
	}
	if got, err := ParseDate("2026-03-31T09:30:00Z"); err != nil || !got.Equal(time.Date(2026, 3, 31, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("rfc3339: got %v, err %v", got, err)
	}
	if got, err := ParseDate(""); err != nil || !got.IsZero() {
		t.Fatalf("empty: got %v, err %v", got, err)
	}
	if _, err := ParseDate("31/03/2026"); err == nil {
		t.Fatal("expected an error for an unsupported layout")
	}
}
