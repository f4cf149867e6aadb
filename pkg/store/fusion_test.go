package store

import "testing"

func ids(hits []fusedHit) []uint64 {
	out := make([]uint64, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out
}

func TestFuseRRF_TieBreaksByDenseRank(t *testing.T) {
	// 1 and 2 swap positions across the legs, so their fused scores are
	// equal; the dense-leg order decides.
	got := fuseRRF([]uint64{1, 2, 3}, []uint64{2, 1})
	want := []uint64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %d hits, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].id != want[i] {
			t.Fatalf("order = %v, want %v", ids(got), want)
		}
	}
	if got[0].score != got[1].score {
		t.Fatalf("expected tied scores, got %v vs %v", got[0].score, got[1].score)
	}
	if got[2].score >= got[1].score {
		t.Fatalf("single-leg candidate outranked double-leg: %v", got)
	}
}

func TestFuseRRF_BothLegsBeatOne(t *testing.T) {
	// 7 ranks last in both legs but still beats 8 and 9, each seen once.
	got := fuseRRF([]uint64{8, 7}, []uint64{9, 7})
	if len(got) != 3 {
		t.Fatalf("got %d hits, want 3", len(got))
	}
	if got[0].id != 7 {
		t.Fatalf("top = %d, want 7 (order %v)", got[0].id, ids(got))
	}
}

func TestFuseRRF_SingleLeg(t *testing.T) {
	got := fuseRRF(nil, []uint64{4, 5})
	if len(got) != 2 || got[0].id != 4 || got[1].id != 5 {
		t.Fatalf("sparse-only order = %v, want [4 5]", ids(got))
	}

	got = fuseRRF([]uint64{6}, nil)
	if len(got) != 1 || got[0].id != 6 {
		t.Fatalf("dense-only order = %v, want [6]", ids(got))
	}
}

func TestFuseRRF_DuplicateKeepsBestRank(t *testing.T) {
	dup := fuseRRF([]uint64{5, 5, 9}, nil)
	clean := fuseRRF([]uint64{5, 9}, nil)
	if len(dup) != 2 {
		t.Fatalf("got %d hits, want 2", len(dup))
	}
	if dup[0].id != 5 || dup[0].score != clean[0].score {
		t.Fatalf("duplicate changed best-rank score: %v vs %v", dup[0], clean[0])
	}
}

func TestFuseRRF_ScoreScale(t *testing.T) {
	// The engine's similarity thresholds assume this scale: top of both
	// legs fuses to 1.0, top of a single leg to 0.5.
	got := fuseRRF([]uint64{1}, []uint64{1})
	if len(got) != 1 || got[0].score != 1.0 {
		t.Fatalf("dual-top score = %v, want 1.0", got)
	}
	got = fuseRRF([]uint64{2}, nil)
	if len(got) != 1 || got[0].score != 0.5 {
		t.Fatalf("single-top score = %v, want 0.5", got)
	}
}

func TestFuseRRF_Empty(t *testing.T) {
	if got := fuseRRF(nil, nil); len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}
