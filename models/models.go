package models

import "fmt"

// PerformedNote is a single live note event from a performer.
// Velocity 0 is a note-off and is filtered before buffering.
type PerformedNote struct {
	Pitch     int     `json:"pitch"`
	Velocity  int     `json:"velocity"`
	Timestamp float64 `json:"timestamp"`
}

// Validate rejects out-of-range events at the inbound boundary.
func (n PerformedNote) Validate() error {
	if n.Pitch < 0 || n.Pitch > 127 {
		return fmt.Errorf("invalid pitch: %d", n.Pitch)
	}
	if n.Velocity < 0 || n.Velocity > 127 {
		return fmt.Errorf("invalid velocity: %d", n.Velocity)
	}
	if n.Timestamp < 0 {
		return fmt.Errorf("invalid timestamp: %f", n.Timestamp)
	}
	return nil
}

// ScoreNote is one note of a reference score. OnsetDiv is in MIDI ticks,
// the native unit of the score files; DurationQuarter is in quarter notes.
type ScoreNote struct {
	Pitch           int     `json:"pitch"`
	OnsetDiv        float64 `json:"onset_div"`
	DurationQuarter float64 `json:"duration_quarter"`
}

// KeyEvent is a key signature change point on a piece's timeline.
// Onset uses the same unit as ScoreNote.OnsetDiv.
type KeyEvent struct {
	Onset   float64 `json:"onset"`
	Key     string  `json:"key"`
	Tonic   int     `json:"tonic"`
	IsMinor bool    `json:"is_minor"`
}

// KeyChange is an upcoming key change relative to a score position.
type KeyChange struct {
	Position         int     `json:"position"`
	Onset            float64 `json:"onset"`
	Key              string  `json:"key"`
	Tonic            int     `json:"tonic"`
	IsMinor          bool    `json:"is_minor"`
	NotesUntilChange int     `json:"notes_until_change"`
}

// ScoreData is what the score provider returns for an identified piece.
type ScoreData struct {
	Piece     string
	Notes     []ScoreNote
	KeyEvents []KeyEvent
}

// Piece is a registered composition.
type Piece struct {
	ID        uint32 `json:"id"`
	Name      string `json:"name"`
	Composer  string `json:"composer"`
	Track     string `json:"track"`
	ScorePath string `json:"scorePath,omitempty"`
}

// Posting is the per-piece value stored under a fingerprint hash: the
// note indices where that n-gram starts within the piece.
type Posting struct {
	PieceID   uint32   `json:"pieceID"`
	Positions []uint32 `json:"positions"`
}

// IdentificationResult is one ranked candidate from the fingerprint index.
type IdentificationResult struct {
	Rank       int     `json:"rank"`
	Piece      string  `json:"piece"`
	Matches    int     `json:"matches"`
	Confidence float64 `json:"confidence"`
	Coverage   float64 `json:"coverage"`
}

// PredictedNote is an upcoming score note with its resolved key.
type PredictedNote struct {
	NoteID     string  `json:"note_id"`
	Pitch      int     `json:"pitch"`
	Position   int     `json:"position"`
	TimeOffset float64 `json:"time_offset"`
	Duration   float64 `json:"duration"`
	Key        string  `json:"key"`
	Tonic      int     `json:"tonic"`
	IsMinor    bool    `json:"is_minor"`
}

// TuningAssignment is the just intonation tuning for one predicted note.
// Cents is the deviation from equal temperament, rounded to 2 decimals.
type TuningAssignment struct {
	NoteID      string  `json:"note_id"`
	Ratio       float64 `json:"ratio"`
	Cents       float64 `json:"cents"`
	ScaleDegree int     `json:"scale_degree"`
	TonicPC     int     `json:"tonic_pc"`
	Key         string  `json:"key"`
	IsMinor     bool    `json:"is_minor"`
}
