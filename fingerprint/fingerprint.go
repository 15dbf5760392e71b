package fingerprint

// Melodic Fingerprinting
//
// This package implements an n-gram fingerprinting system for identifying
// a composition from a short excerpt of performed notes.
//
// How Fingerprinting Works:
//
// 1. N-Gram Extraction:
//    - A window of n consecutive notes (default 4) slides across the
//      pitch sequence of a piece
//    - Each window yields one fingerprint: the ordered tuple of ABSOLUTE
//      MIDI pitches, plus the note index where the window starts
//
// 2. Address Generation:
//    - The pitch tuple is packed into a 64-bit address, 8 bits per pitch
//    - Packing is exact for n <= 8: two distinct tuples can never share
//      an address, and the address is deterministic across runs
//
// 3. Key Awareness:
//    - No octave or key normalization is applied. A melody in C major and
//      its transposition to G major produce disjoint addresses on purpose:
//      the downstream tuning system needs the true key, so precision is
//      traded for recall
//
// 4. Identification:
//    - Query n-grams vote for every piece that contains them; pieces are
//      ranked by votes
//    - Confidence = votes / matched query fingerprints. Under sparse data
//      (few matched fingerprints) a piece matching the only hit can reach
//      100% confidence; the coverage field is the counterweight and should
//      be read together with it

const (
	// DefaultN is the fingerprint window size in notes.
	DefaultN = 4

	// maxN is the largest window the 64-bit address can pack exactly.
	maxN = 8
)

// Fingerprint is one extracted n-gram: its address and the note index
// where the window starts.
type Fingerprint struct {
	Address  uint64
	Position uint32
}

// Extract slides a window of size n across the pitch sequence and returns
// one fingerprint per window. Sequences shorter than n yield none.
func Extract(pitches []int, n int) []Fingerprint {
	if n < 2 || n > maxN || len(pitches) < n {
		return nil
	}

	fingerprints := make([]Fingerprint, 0, len(pitches)-n+1)
	for i := 0; i+n <= len(pitches); i++ {
		fingerprints = append(fingerprints, Fingerprint{
			Address:  createAddress(pitches[i : i+n]),
			Position: uint32(i),
		})
	}
	return fingerprints
}

// createAddress packs an ordered pitch tuple into a 64-bit address,
// 8 bits per pitch, first pitch in the highest byte.
func createAddress(pitches []int) uint64 {
	var address uint64
	for _, p := range pitches {
		address = address<<8 | uint64(uint8(p))
	}
	return address
}
