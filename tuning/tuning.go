package tuning

// 5-limit just intonation relative to the tonic. Scale degrees are
// semitones 0-11 above the tonic pitch class. The minor table differs
// from the major table only at degree 10 (16/9 instead of 9/5).

import (
	"fmt"
	"math"

	"justintune/keysig"
	"justintune/models"
)

var majorRatios = [12]float64{
	1, 16.0 / 15, 9.0 / 8, 6.0 / 5, 5.0 / 4, 4.0 / 3,
	45.0 / 32, 3.0 / 2, 8.0 / 5, 5.0 / 3, 9.0 / 5, 15.0 / 8,
}

var minorRatios = [12]float64{
	1, 16.0 / 15, 9.0 / 8, 6.0 / 5, 5.0 / 4, 4.0 / 3,
	45.0 / 32, 3.0 / 2, 8.0 / 5, 5.0 / 3, 16.0 / 9, 15.0 / 8,
}

// Tune maps a MIDI pitch to its just intonation ratio and the cents
// deviation from equal temperament for that scale degree.
func Tune(pitch, tonic int, minor bool) (ratio, cents float64) {
	degree := ScaleDegree(pitch, tonic)
	if minor {
		ratio = minorRatios[degree]
	} else {
		ratio = majorRatios[degree]
	}
	cents = 1200*math.Log2(ratio) - float64(degree*100)
	return ratio, cents
}

// ScaleDegree returns the semitone distance of pitch above the tonic
// pitch class, in 0-11.
func ScaleDegree(pitch, tonic int) int {
	return ((pitch-tonic)%12 + 12) % 12
}

// fallbackDuration is used when a score note carries no duration.
const fallbackDuration = 0.5

// Predict extracts the notes expected within the lookahead window.
// The tempo is converted to seconds per note assuming a sixteenth-note
// subdivision; each predicted note carries the key resolved at its own
// score position, since the key may change inside the window. Note IDs
// are namespaced by the prediction session so that notes predicted
// before and after a re-identification never collide.
func Predict(position int, tempoBPM, lookaheadSeconds float64, notes []models.ScoreNote, timeline *keysig.Timeline, sessionID int) []models.PredictedNote {
	if len(notes) == 0 || position < 0 || position >= len(notes) || tempoBPM <= 0 {
		return nil
	}

	secondsPerNote := 60.0 / (tempoBPM * 4)
	count := int(lookaheadSeconds / secondsPerNote)
	end := position + count
	if end > len(notes) {
		end = len(notes)
	}

	predicted := make([]models.PredictedNote, 0, end-position)
	for i := position; i < end; i++ {
		note := notes[i]
		duration := note.DurationQuarter
		if duration <= 0 {
			duration = fallbackDuration
		}
		key := timeline.KeyAt(note.OnsetDiv)
		predicted = append(predicted, models.PredictedNote{
			NoteID:     fmt.Sprintf("%d_%d", sessionID, i),
			Pitch:      note.Pitch,
			Position:   i,
			TimeOffset: float64(i-position) * secondsPerNote,
			Duration:   duration,
			Key:        key.Key,
			Tonic:      key.Tonic,
			IsMinor:    key.IsMinor,
		})
	}
	return predicted
}

// KeyLookup resolves the key active at a score position.
type KeyLookup func(position int) models.KeyEvent

// CalculateTuning builds the tuning table for a prediction window:
// pitch -> ordered tuning assignments, one per predicted note. Entries
// are deliberately not deduplicated; a pitch recurring across a key
// change needs two different tunings.
func CalculateTuning(predicted []models.PredictedNote, keyAt KeyLookup) map[int][]models.TuningAssignment {
	if len(predicted) == 0 {
		return nil
	}

	table := make(map[int][]models.TuningAssignment)
	for _, note := range predicted {
		key := keyAt(note.Position)
		ratio, cents := Tune(note.Pitch, key.Tonic, key.IsMinor)
		table[note.Pitch] = append(table[note.Pitch], models.TuningAssignment{
			NoteID:      note.NoteID,
			Ratio:       ratio,
			Cents:       math.Round(cents*100) / 100,
			ScaleDegree: ScaleDegree(note.Pitch, key.Tonic),
			TonicPC:     key.Tonic,
			Key:         key.Key,
			IsMinor:     key.IsMinor,
		})
	}
	return table
}
