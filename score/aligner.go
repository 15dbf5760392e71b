package score

import "justintune/models"

// Aligner maps a performed note onto a position in the reference score.
// A false return means no alignment was found for this note; the caller
// falls back to advancing its previous position.
type Aligner interface {
	Align(note models.PerformedNote) (int, bool)
}

// AlignerFactory builds an aligner for one score. Each session gets its
// own instance since aligners carry a cursor.
type AlignerFactory func(notes []models.ScoreNote) Aligner

// WindowAligner is a deterministic forward-window pitch matcher: it
// scans a small window ahead of its cursor for the performed pitch and
// jumps to the first hit. It stands in for a full alignment service and
// is intentionally simple; wrong notes just produce misses.
type WindowAligner struct {
	notes  []models.ScoreNote
	cursor int
	window int
}

const defaultAlignWindow = 8

// NewWindowAligner returns an aligner positioned at the score start.
func NewWindowAligner(notes []models.ScoreNote) Aligner {
	return &WindowAligner{notes: notes, window: defaultAlignWindow}
}

func (a *WindowAligner) Align(note models.PerformedNote) (int, bool) {
	end := a.cursor + a.window
	if end > len(a.notes) {
		end = len(a.notes)
	}
	for i := a.cursor; i < end; i++ {
		if a.notes[i].Pitch == note.Pitch {
			a.cursor = i + 1
			return i, true
		}
	}
	if a.cursor < len(a.notes) {
		a.cursor++
	}
	return 0, false
}
