package keysig

import (
	"testing"

	"justintune/models"
)

func TestBuildEmptyDefaultsToCMajor(t *testing.T) {
	t.Parallel()

	tl := Build(nil)
	if tl.Len() != 1 {
		t.Fatalf("timeline length = %d, want 1", tl.Len())
	}
	first := tl.First()
	if first.Key != "C" || first.Tonic != 0 || first.IsMinor || first.Onset != 0 {
		t.Errorf("default key = %+v, want C major at onset 0", first)
	}
}

func TestBuildSortsByOnset(t *testing.T) {
	t.Parallel()

	tl := Build([]models.KeyEvent{
		{Onset: 960, Key: "G", Tonic: 7},
		{Onset: 0, Key: "C", Tonic: 0},
		{Onset: 480, Key: "F", Tonic: 5},
	})
	events := tl.Events()
	for i := 1; i < len(events); i++ {
		if events[i-1].Onset > events[i].Onset {
			t.Fatalf("events not sorted: %v before %v", events[i-1].Onset, events[i].Onset)
		}
	}
}

func TestKeyAt(t *testing.T) {
	t.Parallel()

	tl := Build([]models.KeyEvent{
		{Onset: 0, Key: "C", Tonic: 0},
		{Onset: 480, Key: "G", Tonic: 7},
		{Onset: 1920, Key: "Dm", Tonic: 2, IsMinor: true},
	})

	cases := []struct {
		onset float64
		want  string
	}{
		{-100, "C"}, // before first event: treat first as active
		{0, "C"},
		{479, "C"},
		{480, "G"},
		{1919, "G"},
		{1920, "Dm"},
		{100000, "Dm"},
	}
	for _, c := range cases {
		if got := tl.KeyAt(c.onset); got.Key != c.want {
			t.Errorf("KeyAt(%v) = %q, want %q", c.onset, got.Key, c.want)
		}
	}
}

func TestKeyAtMonotonic(t *testing.T) {
	t.Parallel()

	tl := Build([]models.KeyEvent{
		{Onset: 0, Key: "C"},
		{Onset: 100, Key: "G"},
		{Onset: 250, Key: "D"},
		{Onset: 700, Key: "A"},
	})

	indexOf := func(key string) int {
		for i, e := range tl.Events() {
			if e.Key == key {
				return i
			}
		}
		t.Fatalf("key %q not in timeline", key)
		return -1
	}

	prev := -1
	for onset := -50.0; onset < 900; onset += 7 {
		idx := indexOf(tl.KeyAt(onset).Key)
		if idx < prev {
			t.Fatalf("KeyAt not monotonic: index %d after %d at onset %v", idx, prev, onset)
		}
		prev = idx
	}
}

func TestUpcomingChanges(t *testing.T) {
	t.Parallel()

	tl := Build([]models.KeyEvent{
		{Onset: 0, Key: "C", Tonic: 0},
		{Onset: 400, Key: "G", Tonic: 7},
		{Onset: 800, Key: "C", Tonic: 0},
	})
	// one note per 100 ticks
	notes := make([]models.ScoreNote, 12)
	for i := range notes {
		notes[i] = models.ScoreNote{Pitch: 60, OnsetDiv: float64(i * 100)}
	}

	changes := tl.UpcomingChanges(0, notes, 12)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(changes), changes)
	}
	if changes[0].Position != 4 || changes[0].Key != "G" || changes[0].NotesUntilChange != 4 {
		t.Errorf("first change = %+v, want G at position 4", changes[0])
	}
	if changes[1].Position != 8 || changes[1].Key != "C" {
		t.Errorf("second change = %+v, want C at position 8", changes[1])
	}

	// lookahead window caps the scan
	if got := tl.UpcomingChanges(0, notes, 4); len(got) != 0 {
		t.Errorf("lookahead 4 should see no change, got %+v", got)
	}

	// does not wrap past the end of the score
	if got := tl.UpcomingChanges(9, notes, 50); len(got) != 0 {
		t.Errorf("no change after position 9, got %+v", got)
	}
}

func TestBuildAndQueryUseSameUnit(t *testing.T) {
	t.Parallel()

	// Timeline onsets in ticks (480 per quarter). Querying with quarter
	// units instead of ticks would resolve the old key long after the
	// change; this pins the tick-for-tick contract.
	tl := Build([]models.KeyEvent{
		{Onset: 0, Key: "C", Tonic: 0},
		{Onset: 960, Key: "D", Tonic: 2},
	})
	note := models.ScoreNote{Pitch: 62, OnsetDiv: 960}

	if got := tl.KeyAt(note.OnsetDiv); got.Key != "D" {
		t.Fatalf("tick query resolved %q, want D", got.Key)
	}
	quarters := note.OnsetDiv / 480
	if got := tl.KeyAt(quarters); got.Key == "D" {
		t.Fatal("quarter-unit query must not resolve like a tick query; unit mismatch would go unnoticed")
	}
}

func TestFromFifths(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fifths int
		minor  bool
		key    string
		tonic  int
	}{
		{0, false, "C", 0},
		{2, false, "D", 2},
		{-3, false, "Eb", 3},
		{0, true, "Am", 9},
		{-1, true, "Dm", 2},
		{3, true, "F#m", 6},
		{99, false, "C", 0}, // out of range falls back
	}
	for _, c := range cases {
		got := FromFifths(0, c.fifths, c.minor)
		if got.Key != c.key || got.Tonic != c.tonic || got.IsMinor != c.minor {
			t.Errorf("FromFifths(%d, minor=%v) = %+v, want %s tonic %d", c.fifths, c.minor, got, c.key, c.tonic)
		}
	}
}
