package msgraph

import (
	"testing"
	"time"
)

func TestParseGraphTime(t *testing.T) {
	got := parseGraphTime(&graphDateTime{
		DateTime: "2026-09-01T14:30:00.0000000",
		TimeZone: "UTC",
	})
	if got == nil {
		t.Fatal("expected parsed timestamp")
	}
	want := time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseGraphTimeWithZone(t *testing.T) {
	got := parseGraphTime(&graphDateTime{
		DateTime: "2026-09-01T09:00:00",
		TimeZone: "America/New_York",
	})
	if got == nil {
		t.Fatal("expected parsed timestamp")
	}
	// 09:00 EDT is 13:00 UTC.
	want := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseGraphTimeNil(t *testing.T) {
	if parseGraphTime(nil) != nil {
		t.Error("expected nil for nil input")
	}
	if parseGraphTime(&graphDateTime{}) != nil {
		t.Error("expected nil for empty input")
	}
	if parseGraphTime(&graphDateTime{DateTime: "garbage"}) != nil {
		t.Error("expected nil for malformed input")
	}
}

func TestRenderGraphTime(t *testing.T) {
	loc := time.FixedZone("CEST", 2*3600)
	local := time.Date(2026, 9, 1, 16, 0, 0, 0, loc)

	got := renderGraphTime(local)
	if got.DateTime != "2026-09-01T14:00:00" {
		t.Errorf("expected UTC rendering, got %q", got.DateTime)
	}
	if got.TimeZone != "UTC" {
		t.Errorf("expected UTC zone, got %q", got.TimeZone)
	}
}

func TestBase(t *testing.T) {
	if got := base(""); got != defaultBase {
		t.Errorf("expected default base, got %q", got)
	}
	if got := base("https://graph.example.com/v1.0/"); got != "https://graph.example.com/v1.0" {
		t.Errorf("expected trailing slash trimmed, got %q", got)
	}
}
