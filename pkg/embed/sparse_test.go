package embed

import (
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "Alice prefers tabs", []string{"alice", "prefers", "tabs"}},
		{"punctuation", "don't panic, it's fine!", []string{"don", "panic", "it", "fine"}},
		{"short tokens dropped", "a b cd", []string{"cd"}},
		{"digits kept", "port 8080 is open", []string{"port", "8080", "is", "open"}},
		{"empty", "", nil},
		{"only separators", "--- !!! ---", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTokenHashStable(t *testing.T) {
	if TokenHash("coffee") != TokenHash("coffee") {
		t.Fatal("TokenHash is not deterministic")
	}
	if TokenHash("coffee") == TokenHash("tea") {
		t.Fatal("distinct tokens should (almost always) hash differently")
	}
}

func TestSparseEncodeDocument(t *testing.T) {
	enc := NewSparseEncoder()

	sv := enc.Encode("coffee coffee tea")
	if len(sv.Indices) != 2 {
		t.Fatalf("expected 2 distinct terms, got %d", len(sv.Indices))
	}
	if len(sv.Indices) != len(sv.Values) {
		t.Fatalf("indices/values length mismatch: %d vs %d", len(sv.Indices), len(sv.Values))
	}

	// Indices sorted ascending.
	for i := 1; i < len(sv.Indices); i++ {
		if sv.Indices[i-1] >= sv.Indices[i] {
			t.Fatal("indices not sorted ascending")
		}
	}

	// The repeated term must weigh more than the single one, and BM25
	// saturation keeps tf=2 under twice the tf=1 weight.
	byIdx := make(map[uint32]float32)
	for i, idx := range sv.Indices {
		byIdx[idx] = sv.Values[i]
	}
	wCoffee := byIdx[TokenHash("coffee")]
	wTea := byIdx[TokenHash("tea")]
	if wCoffee <= wTea {
		t.Errorf("tf=2 weight %f should exceed tf=1 weight %f", wCoffee, wTea)
	}
	if wCoffee >= 2*wTea {
		t.Errorf("BM25 saturation violated: %f >= 2×%f", wCoffee, wTea)
	}
}

func TestSparseEncodeQuery(t *testing.T) {
	enc := NewSparseEncoder()

	sv := enc.EncodeQuery("coffee coffee tea")
	if len(sv.Indices) != 2 {
		t.Fatalf("expected 2 distinct terms, got %d", len(sv.Indices))
	}
	for i, v := range sv.Values {
		if v != 1 {
			t.Errorf("query weight[%d] = %f, want 1", i, v)
		}
	}
}

func TestSparseEncodeEmpty(t *testing.T) {
	enc := NewSparseEncoder()

	sv := enc.Encode("")
	if len(sv.Indices) != 0 || len(sv.Values) != 0 {
		t.Errorf("expected empty vector for empty text, got %v", sv)
	}
	if terms := enc.Terms(""); terms != nil {
		t.Errorf("expected nil terms for empty text, got %v", terms)
	}
}

func TestSparseTermFrequencies(t *testing.T) {
	enc := NewSparseEncoder()

	terms := enc.Terms("Coffee before noon, coffee after noon")
	if terms["coffee"] != 2 {
		t.Errorf("tf(coffee) = %d, want 2", terms["coffee"])
	}
	if terms["before"] != 1 {
		t.Errorf("tf(before) = %d, want 1", terms["before"])
	}
	if terms["noon"] != 2 {
		t.Errorf("tf(noon) = %d, want 2", terms["noon"])
	}
}
