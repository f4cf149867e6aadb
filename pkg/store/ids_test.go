package store

import (
	"strings"
	"testing"
	"time"
)

func TestPointID_Deterministic(t *testing.T) {
	a := PointID("mem_20250101_120000_abcd")
	b := PointID("mem_20250101_120000_abcd")
	if a != b {
		t.Fatalf("PointID not deterministic: %d vs %d", a, b)
	}
	c := PointID("mem_20250101_120000_abce")
	if a == c {
		t.Fatalf("distinct keys collided: %d", a)
	}
}

func TestPointID_FitsSignedRange(t *testing.T) {
	keys := []string{
		"mem_20250101_120000_abcd",
		"identity:u1",
		"rule:u1:a1b2c3d4-e5f",
		"journal:u1:1700000000.5:hello",
		strings.Repeat("x", 200),
	}
	for _, key := range keys {
		if id := PointID(key); id >= 1<<63 {
			t.Errorf("PointID(%q) = %d, exceeds signed range", key, id)
		}
	}
}

func TestJournalKey(t *testing.T) {
	ts := time.Unix(1700000000, 500000000).UTC()
	got := journalKey("u1", ts, "hello")
	want := "journal:u1:1700000000.5:hello"
	if got != want {
		t.Fatalf("journalKey = %q, want %q", got, want)
	}
}

func TestJournalKey_TruncatesRunes(t *testing.T) {
	content := strings.Repeat("é", 60) // 60 two-byte runes
	ts := time.Unix(1700000000, 0).UTC()
	got := journalKey("u1", ts, content)
	if !strings.HasSuffix(got, strings.Repeat("é", 50)) {
		t.Fatalf("journalKey suffix not truncated to 50 runes: %q", got)
	}
	if strings.Count(got, "é") != 50 {
		t.Fatalf("journalKey kept %d runes, want 50", strings.Count(got, "é"))
	}
}

func TestRecordKeys(t *testing.T) {
	if got, want := identityKey("u1"), "identity:u1"; got != want {
		t.Errorf("identityKey = %q, want %q", got, want)
	}
	if got, want := ruleKey("u1", "a1b2c3d4-e5f"), "rule:u1:a1b2c3d4-e5f"; got != want {
		t.Errorf("ruleKey = %q, want %q", got, want)
	}
}

func TestEpochRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)
	got := timeFromEpoch(epochSeconds(ts))
	if !got.Equal(ts) {
		t.Fatalf("round trip = %v, want %v", got, ts)
	}
	if !timeFromEpoch(0).IsZero() {
		t.Fatal("timeFromEpoch(0) should be the zero time")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"", 5, ""},
		{"日本語です", 3, "日本語"},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
