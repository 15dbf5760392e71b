package score

import (
	"os"
	"testing"

	"justintune/models"
)

func TestWindowAlignerFollowsScore(t *testing.T) {
	t.Parallel()

	notes := []models.ScoreNote{
		{Pitch: 60}, {Pitch: 62}, {Pitch: 64}, {Pitch: 65}, {Pitch: 67},
	}
	aligner := NewWindowAligner(notes)

	for i, pitch := range []int{60, 62, 64, 65, 67} {
		pos, ok := aligner.Align(models.PerformedNote{Pitch: pitch, Velocity: 80})
		if !ok || pos != i {
			t.Fatalf("note %d: got (%d, %v), want (%d, true)", i, pos, ok, i)
		}
	}
}

func TestWindowAlignerSkipsWrongNote(t *testing.T) {
	t.Parallel()

	notes := []models.ScoreNote{
		{Pitch: 60}, {Pitch: 62}, {Pitch: 64},
	}
	aligner := NewWindowAligner(notes)

	if _, ok := aligner.Align(models.PerformedNote{Pitch: 30}); ok {
		t.Fatal("wrong note should not align")
	}
	// a played 62 still lands on its score position after the miss
	pos, ok := aligner.Align(models.PerformedNote{Pitch: 62})
	if !ok || pos != 1 {
		t.Fatalf("got (%d, %v), want (1, true)", pos, ok)
	}
}

func TestWriteBufferFileRoundTrip(t *testing.T) {
	t.Parallel()

	buffer := []models.PerformedNote{
		{Pitch: 60, Velocity: 90, Timestamp: 10.0},
		{Pitch: 62, Velocity: 85, Timestamp: 10.5},
		{Pitch: 64, Velocity: 80, Timestamp: 11.0},
		{Pitch: 65, Velocity: 75, Timestamp: 11.5},
		{Pitch: 67, Velocity: 70, Timestamp: 12.0},
	}

	path, err := WriteBufferFile(buffer)
	if err != nil {
		t.Fatalf("WriteBufferFile: %v", err)
	}
	defer os.Remove(path)

	pitches, err := ExtractPitches(path)
	if err != nil {
		t.Fatalf("ExtractPitches: %v", err)
	}
	want := []int{60, 62, 64, 65, 67}
	if len(pitches) != len(want) {
		t.Fatalf("pitch count = %d, want %d", len(pitches), len(want))
	}
	for i := range want {
		if pitches[i] != want[i] {
			t.Errorf("pitch %d = %d, want %d", i, pitches[i], want[i])
		}
	}
}

func TestWriteBufferFileEmpty(t *testing.T) {
	t.Parallel()

	if _, err := WriteBufferFile(nil); err == nil {
		t.Fatal("empty buffer should error")
	}
}

func TestParseScoreReadsNotesAndKeys(t *testing.T) {
	t.Parallel()

	// reuse the buffer writer to produce a valid SMF fixture
	buffer := []models.PerformedNote{
		{Pitch: 60, Velocity: 90, Timestamp: 0.0},
		{Pitch: 64, Velocity: 90, Timestamp: 0.5},
		{Pitch: 67, Velocity: 90, Timestamp: 1.0},
		{Pitch: 72, Velocity: 90, Timestamp: 1.5},
	}
	path, err := WriteBufferFile(buffer)
	if err != nil {
		t.Fatalf("WriteBufferFile: %v", err)
	}
	defer os.Remove(path)

	notes, keyEvents, err := ParseScore(path)
	if err != nil {
		t.Fatalf("ParseScore: %v", err)
	}
	if len(notes) != 4 {
		t.Fatalf("note count = %d, want 4", len(notes))
	}
	for i := 1; i < len(notes); i++ {
		if notes[i-1].OnsetDiv > notes[i].OnsetDiv {
			t.Fatal("notes not ordered by onset")
		}
	}
	for _, n := range notes {
		if n.DurationQuarter <= 0 {
			t.Errorf("note duration = %v, want > 0", n.DurationQuarter)
		}
	}
	// the buffer writer emits no key signature; the timeline layer
	// supplies the default in that case
	if len(keyEvents) != 0 {
		t.Errorf("key events = %d, want 0", len(keyEvents))
	}
}

func TestSMFProviderUnknownPiece(t *testing.T) {
	t.Parallel()

	provider := NewSMFProvider([]models.Piece{
		{ID: 1, Name: "Chopin: Nocturne Op. 9 No. 2", ScorePath: "does/not/exist.mid"},
	})
	if _, ok, _ := provider.Load("Liszt: La Campanella"); ok {
		t.Fatal("unknown piece should report not found")
	}
	// mapped but missing on disk is also a normal not-found branch
	if _, ok, _ := provider.Load("Chopin: Nocturne Op. 9 No. 2"); ok {
		t.Fatal("missing score file should report not found")
	}
}

func TestSMFProviderNameContainment(t *testing.T) {
	t.Parallel()

	buffer := []models.PerformedNote{
		{Pitch: 60, Velocity: 90, Timestamp: 0.0},
		{Pitch: 62, Velocity: 90, Timestamp: 0.5},
		{Pitch: 64, Velocity: 90, Timestamp: 1.0},
		{Pitch: 65, Velocity: 90, Timestamp: 1.5},
	}
	path, err := WriteBufferFile(buffer)
	if err != nil {
		t.Fatalf("WriteBufferFile: %v", err)
	}
	defer os.Remove(path)

	provider := NewSMFProvider([]models.Piece{
		{ID: 1, Name: "Bach: Prelude in C", ScorePath: path},
	})
	data, ok, err := provider.Load("Bach: Prelude in C major BWV 846")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if len(data.Notes) != 4 {
		t.Errorf("score notes = %d, want 4", len(data.Notes))
	}
}
