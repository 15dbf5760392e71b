package keysig

import (
	"sort"

	"justintune/models"
)

// Timeline is a piece's ordered, non-empty sequence of key signature
// change points. Onsets and queries must use the same time unit as the
// score notes (MIDI ticks for SMF scores); mixing units between build
// and query silently resolves wrong keys.
type Timeline struct {
	events []models.KeyEvent
}

// Build sorts the raw key events by onset and returns the timeline.
// An empty input synthesizes a single C major event at onset 0.
func Build(raw []models.KeyEvent) *Timeline {
	events := make([]models.KeyEvent, len(raw))
	copy(events, raw)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Onset < events[j].Onset
	})
	if len(events) == 0 {
		events = append(events, DefaultKey())
	}
	return &Timeline{events: events}
}

// KeyAt returns the last event with onset <= the query onset. Queries
// before the first event resolve to the first event.
func (t *Timeline) KeyAt(onset float64) models.KeyEvent {
	// first index whose onset is strictly greater than the query
	i := sort.Search(len(t.events), func(i int) bool {
		return t.events[i].Onset > onset
	})
	if i == 0 {
		return t.events[0]
	}
	return t.events[i-1]
}

// Len returns the number of key signature events.
func (t *Timeline) Len() int { return len(t.events) }

// Events returns the sorted key events. Callers must not mutate.
func (t *Timeline) Events() []models.KeyEvent { return t.events }

// First returns the key active at the start of the piece.
func (t *Timeline) First() models.KeyEvent { return t.events[0] }

// UpcomingChanges scans at most lookahead score positions forward from
// the given position and reports each position where the resolved key
// differs from the previously resolved one. Does not wrap.
func (t *Timeline) UpcomingChanges(from int, notes []models.ScoreNote, lookahead int) []models.KeyChange {
	if len(notes) == 0 || from >= len(notes) || from < 0 {
		return nil
	}

	current := t.KeyAt(notes[from].OnsetDiv)
	end := from + lookahead
	if end > len(notes) {
		end = len(notes)
	}

	var changes []models.KeyChange
	for pos := from; pos < end; pos++ {
		k := t.KeyAt(notes[pos].OnsetDiv)
		if k.Key == current.Key {
			continue
		}
		changes = append(changes, models.KeyChange{
			Position:         pos,
			Onset:            notes[pos].OnsetDiv,
			Key:              k.Key,
			Tonic:            k.Tonic,
			IsMinor:          k.IsMinor,
			NotesUntilChange: pos - from,
		})
		current = k
	}
	return changes
}
