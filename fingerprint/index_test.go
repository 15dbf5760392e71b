package fingerprint

import (
	"testing"
)

func buildTwoPieceIndex() *Index {
	idx := NewIndex(4)
	idx.AddPiece(1, "Piece A", []int{60, 62, 64, 65, 67, 69, 71, 72})
	idx.AddPiece(2, "Piece B", []int{60, 60, 60, 60})
	return idx
}

func TestExtractShortSequence(t *testing.T) {
	t.Parallel()

	for length := 0; length < 4; length++ {
		pitches := make([]int, length)
		if got := Extract(pitches, 4); len(got) != 0 {
			t.Errorf("Extract of %d pitches returned %d fingerprints, want 0", length, len(got))
		}
	}
}

func TestExtractPositionsAndDeterminism(t *testing.T) {
	t.Parallel()

	pitches := []int{60, 62, 64, 65, 67}
	fps := Extract(pitches, 4)
	if len(fps) != 2 {
		t.Fatalf("expected 2 fingerprints, got %d", len(fps))
	}
	if fps[0].Position != 0 || fps[1].Position != 1 {
		t.Errorf("unexpected positions: %d, %d", fps[0].Position, fps[1].Position)
	}
	again := Extract(pitches, 4)
	for i := range fps {
		if fps[i] != again[i] {
			t.Fatalf("extraction is not deterministic at %d: %+v vs %+v", i, fps[i], again[i])
		}
	}
}

func TestAddressIsKeyAware(t *testing.T) {
	t.Parallel()

	cMajor := Extract([]int{60, 62, 64, 65}, 4)
	gMajor := Extract([]int{67, 69, 71, 72}, 4)
	if cMajor[0].Address == gMajor[0].Address {
		t.Fatal("transposed passages must not share an address")
	}
}

func TestIdentifyShortQuery(t *testing.T) {
	t.Parallel()

	idx := buildTwoPieceIndex()
	if got := idx.Identify([]int{60, 62, 64}, 3); got != nil {
		t.Errorf("query below window size should yield no verdict, got %v", got)
	}
}

func TestIdentifyEmptyIndex(t *testing.T) {
	t.Parallel()

	idx := NewIndex(4)
	if got := idx.Identify([]int{60, 62, 64, 65, 67}, 3); got != nil {
		t.Errorf("empty index should yield no verdict, got %v", got)
	}
}

func TestIdentifyTwoPieceScenario(t *testing.T) {
	t.Parallel()

	idx := buildTwoPieceIndex()
	results := idx.Identify([]int{60, 62, 64, 65, 67}, 3)
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}

	top := results[0]
	if top.Piece != "Piece A" {
		t.Fatalf("expected Piece A on top, got %q", top.Piece)
	}
	if top.Rank != 1 {
		t.Errorf("top rank = %d, want 1", top.Rank)
	}
	if top.Matches != 2 {
		t.Errorf("matches = %d, want 2", top.Matches)
	}
	if top.Confidence != 100.0 {
		t.Errorf("confidence = %v, want 100", top.Confidence)
	}
	if top.Coverage != 100.0 {
		t.Errorf("coverage = %v, want 100", top.Coverage)
	}
}

func TestIdentifyBounds(t *testing.T) {
	t.Parallel()

	idx := buildTwoPieceIndex()
	queries := [][]int{
		{60, 62, 64, 65, 67, 69, 71, 72},
		{60, 60, 60, 60, 60},
		{60, 62, 64, 65, 40, 41, 42, 43},
		{30, 31, 32, 33, 34},
	}
	for _, q := range queries {
		for _, r := range idx.Identify(q, 5) {
			if r.Confidence < 0 || r.Confidence > 100 {
				t.Errorf("confidence %v out of [0,100] for query %v", r.Confidence, q)
			}
			if r.Coverage < 0 || r.Coverage > 100 {
				t.Errorf("coverage %v out of [0,100] for query %v", r.Coverage, q)
			}
		}
	}
}

func TestIdentifySharedMotifVotesBoth(t *testing.T) {
	t.Parallel()

	idx := NewIndex(4)
	idx.AddPiece(1, "First", []int{60, 62, 64, 65})
	idx.AddPiece(2, "Second", []int{60, 62, 64, 65, 2, 3, 4, 5})

	results := idx.Identify([]int{60, 62, 64, 65}, 3)
	if len(results) != 2 {
		t.Fatalf("shared motif should return both owners, got %d", len(results))
	}
	// One matched fingerprint, one vote each: documented formula makes
	// both 100% confident. Tie broken by first-encountered order.
	if results[0].Piece != "First" || results[1].Piece != "Second" {
		t.Errorf("tie order wrong: %q, %q", results[0].Piece, results[1].Piece)
	}
	for _, r := range results {
		if r.Confidence != 100.0 {
			t.Errorf("confidence for %q = %v, want 100", r.Piece, r.Confidence)
		}
	}
}

func TestIndexRoundTripThroughPostings(t *testing.T) {
	t.Parallel()

	idx := buildTwoPieceIndex()
	restored := NewIndexFromPostings(idx.N(), idx.Entries(), idx.Names())

	queries := [][]int{
		{60, 62, 64, 65, 67},
		{60, 60, 60, 60},
		{72, 71, 69, 67},
	}
	for _, q := range queries {
		want := idx.Identify(q, 3)
		got := restored.Identify(q, 3)
		if len(want) != len(got) {
			t.Fatalf("round trip result count differs for %v: %d vs %d", q, len(want), len(got))
		}
		for i := range want {
			if want[i] != got[i] {
				t.Errorf("round trip result %d differs for %v: %+v vs %+v", i, q, want[i], got[i])
			}
		}
	}
}

func TestIndexAppendTolerantOfEmptyInput(t *testing.T) {
	t.Parallel()

	idx := NewIndex(4)
	if n := idx.AddPiece(7, "Broken", nil); n != 0 {
		t.Fatalf("unparsable piece should contribute zero fingerprints, got %d", n)
	}
	if idx.Size() != 0 {
		t.Errorf("index size = %d, want 0", idx.Size())
	}
	if idx.PieceCount() != 1 {
		t.Errorf("piece registry should still hold the piece, count = %d", idx.PieceCount())
	}
}
