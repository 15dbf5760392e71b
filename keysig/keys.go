package keysig

import "justintune/models"

// Key signature naming follows the circle of fifths as encoded in
// MIDI and MusicXML key signature events.

var fifthsToMajorKey = map[int]string{
	-7: "Cb", -6: "Gb", -5: "Db", -4: "Ab", -3: "Eb", -2: "Bb", -1: "F",
	0: "C", 1: "G", 2: "D", 3: "A", 4: "E", 5: "B", 6: "F#", 7: "C#",
}

var fifthsToMinorKey = map[int]string{
	-7: "Abm", -6: "Ebm", -5: "Bbm", -4: "Fm", -3: "Cm", -2: "Gm", -1: "Dm",
	0: "Am", 1: "Em", 2: "Bm", 3: "F#m", 4: "C#m", 5: "G#m", 6: "D#m", 7: "A#m",
}

var keyToTonic = map[string]int{
	"C": 0, "C#": 1, "Db": 1, "D": 2, "D#": 3, "Eb": 3, "E": 4, "Fb": 4,
	"F": 5, "F#": 6, "Gb": 6, "G": 7, "G#": 8, "Ab": 8, "A": 9, "A#": 10,
	"Bb": 10, "B": 11, "Cb": 11,
	"Am": 9, "A#m": 10, "Bbm": 10, "Bm": 11, "Cm": 0, "C#m": 1, "Dbm": 1,
	"Dm": 2, "D#m": 3, "Ebm": 3, "Em": 4, "Fm": 5, "F#m": 6, "Gbm": 6,
	"Gm": 7, "G#m": 8, "Abm": 8,
}

// FromFifths resolves a (fifths, mode) key signature event into a key
// event at the given onset. Out-of-range fifths fall back to C / Am.
func FromFifths(onset float64, fifths int, minor bool) models.KeyEvent {
	var name string
	if minor {
		name = fifthsToMinorKey[fifths]
		if name == "" {
			name = "Am"
		}
	} else {
		name = fifthsToMajorKey[fifths]
		if name == "" {
			name = "C"
		}
	}
	return models.KeyEvent{
		Onset:   onset,
		Key:     name,
		Tonic:   keyToTonic[name],
		IsMinor: minor,
	}
}

// DefaultKey is the key assumed when a score carries no key signature.
func DefaultKey() models.KeyEvent {
	return models.KeyEvent{Onset: 0, Key: "C", Tonic: 0, IsMinor: false}
}
