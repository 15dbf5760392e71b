package fingerprint

import (
	"fmt"
	"math"
	"sort"

	"justintune/models"
)

// Index is the content-addressable fingerprint map. It is built once,
// from a corpus or from persisted postings, and read-only afterwards.
type Index struct {
	n       int
	entries map[uint64][]models.Posting
	names   map[uint32]string
}

// NewIndex returns an empty index for n-note fingerprint windows.
func NewIndex(n int) *Index {
	if n < 2 || n > maxN {
		n = DefaultN
	}
	return &Index{
		n:       n,
		entries: make(map[uint64][]models.Posting),
		names:   make(map[uint32]string),
	}
}

// NewIndexFromPostings rebuilds an index from persisted postings, e.g.
// after a database load. Posting order within a hash must be the build
// order so that identification results round-trip exactly.
func NewIndexFromPostings(n int, entries map[uint64][]models.Posting, names map[uint32]string) *Index {
	idx := NewIndex(n)
	for address, postings := range entries {
		idx.entries[address] = postings
	}
	for id, name := range names {
		idx.names[id] = name
	}
	return idx
}

// AddPiece fingerprints a pitch sequence and appends its postings.
// Returns the number of fingerprints extracted; a too-short sequence
// contributes zero and is not an error.
func (idx *Index) AddPiece(id uint32, name string, pitches []int) int {
	idx.names[id] = name

	fingerprints := Extract(pitches, idx.n)
	for _, fp := range fingerprints {
		idx.append(fp.Address, id, fp.Position)
	}
	return len(fingerprints)
}

func (idx *Index) append(address uint64, pieceID uint32, position uint32) {
	postings := idx.entries[address]
	for i := range postings {
		if postings[i].PieceID == pieceID {
			postings[i].Positions = append(postings[i].Positions, position)
			return
		}
	}
	idx.entries[address] = append(postings, models.Posting{
		PieceID:   pieceID,
		Positions: []uint32{position},
	})
}

// Identify extracts the query's n-grams and votes across the index.
// Each query fingerprint found in the index counts once toward
// matchedFingerprints and casts one vote per piece owning that address.
// Returns up to topK candidates ranked by votes, ties broken by the
// order pieces were first encountered. An empty result is the normal
// "no verdict" outcome for short queries or an empty index.
func (idx *Index) Identify(pitches []int, topK int) []models.IdentificationResult {
	queryFPs := Extract(pitches, idx.n)
	if len(queryFPs) == 0 || len(idx.entries) == 0 {
		return nil
	}

	votes := make(map[uint32]int)
	var order []uint32
	matched := 0

	for _, fp := range queryFPs {
		postings, ok := idx.entries[fp.Address]
		if !ok {
			continue
		}
		matched++
		for _, p := range postings {
			if _, seen := votes[p.PieceID]; !seen {
				order = append(order, p.PieceID)
			}
			votes[p.PieceID]++
		}
	}

	if matched == 0 {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool {
		return votes[order[i]] > votes[order[j]]
	})
	if topK > 0 && len(order) > topK {
		order = order[:topK]
	}

	coverage := round1(float64(matched) / float64(len(queryFPs)) * 100)

	results := make([]models.IdentificationResult, 0, len(order))
	for i, pieceID := range order {
		name := idx.names[pieceID]
		if name == "" {
			name = fmt.Sprintf("piece-%d", pieceID)
		}
		results = append(results, models.IdentificationResult{
			Rank:       i + 1,
			Piece:      name,
			Matches:    votes[pieceID],
			Confidence: round1(float64(votes[pieceID]) / float64(matched) * 100),
			Coverage:   coverage,
		})
	}
	return results
}

// N returns the fingerprint window size.
func (idx *Index) N() int { return idx.n }

// Size returns the number of distinct fingerprint addresses.
func (idx *Index) Size() int { return len(idx.entries) }

// PieceCount returns the number of registered pieces.
func (idx *Index) PieceCount() int { return len(idx.names) }

// Entries exposes the postings for persistence. Callers must not mutate.
func (idx *Index) Entries() map[uint64][]models.Posting { return idx.entries }

// Names exposes the piece registry for persistence. Callers must not mutate.
func (idx *Index) Names() map[uint32]string { return idx.names }

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
