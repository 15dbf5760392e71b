package score

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"justintune/keysig"
	"justintune/models"
)

const defaultResolution = 480

// ReadSMF reads and parses a standard MIDI file. The smf parser can
// panic on malformed input, so panics are converted to errors.
func ReadSMF(path string) (s *smf.SMF, e error) {
	defer func() {
		if r := recover(); r != nil {
			e = fmt.Errorf("panic parsing midi file: %v", r)
		}
	}()

	dat, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading midi file: %v", err)
	}
	res, err := smf.ReadFrom(bytes.NewReader(dat))
	if err != nil {
		return nil, fmt.Errorf("error parsing midi file: %v", err)
	}
	return res, nil
}

type timedNote struct {
	pitch    int
	onset    int64
	duration int64
}

// parseTrackNotes pairs note-on and note-off events of one track into
// timed notes with absolute-tick onsets.
func parseTrackNotes(track smf.Track) []timedNote {
	type open struct {
		onset int64
		idx   int
	}

	var notes []timedNote
	pressed := make(map[uint8][]open)

	var absTicks int64
	for _, event := range track {
		absTicks += int64(event.Delta)
		var channel, key, velocity uint8
		switch {
		case event.Message.GetNoteOn(&channel, &key, &velocity) && velocity > 0:
			notes = append(notes, timedNote{pitch: int(key), onset: absTicks})
			pressed[key] = append(pressed[key], open{onset: absTicks, idx: len(notes) - 1})
		case event.Message.GetNoteOff(&channel, &key, &velocity),
			event.Message.GetNoteOn(&channel, &key, &velocity): // running-status note-off
			if stack := pressed[key]; len(stack) > 0 {
				o := stack[0]
				pressed[key] = stack[1:]
				notes[o.idx].duration = absTicks - o.onset
			}
		}
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].onset < notes[j].onset
	})
	return notes
}

// parseKeyEvents collects key signature meta events across all tracks.
// A meta key signature is FF 59 with two data bytes: signed fifths and
// mode; some writers include the length byte in the raw message, some
// don't, so both layouts are accepted.
func parseKeyEvents(s *smf.SMF) []models.KeyEvent {
	var events []models.KeyEvent
	for _, track := range s.Tracks {
		var absTicks int64
		for _, event := range track {
			absTicks += int64(event.Delta)
			raw := event.Message.Bytes()
			if len(raw) < 4 || raw[0] != 0xFF || raw[1] != 0x59 {
				continue
			}
			data := raw[2:]
			if len(data) >= 3 && data[0] == 2 {
				data = data[1:]
			}
			if len(data) < 2 {
				continue
			}
			fifths := int(int8(data[0]))
			minor := data[1] == 1
			events = append(events, keysig.FromFifths(float64(absTicks), fifths, minor))
		}
	}
	return events
}

// resolution returns ticks per quarter note, falling back to a common
// default for non-metric time formats.
func resolution(s *smf.SMF) int64 {
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		return int64(mt.Ticks4th())
	}
	return defaultResolution
}

// firstNoteTrack returns the parsed notes of the first track that
// carries any, matching the single-stream scope of identification.
func firstNoteTrack(s *smf.SMF) []timedNote {
	for _, track := range s.Tracks {
		if notes := parseTrackNotes(track); len(notes) > 0 {
			return notes
		}
	}
	return nil
}

// ParseScore reads a score MIDI file into an ordered note sequence and
// its raw key signature events. Onsets are in ticks, the file's native
// unit; durations are converted to quarter notes.
func ParseScore(path string) ([]models.ScoreNote, []models.KeyEvent, error) {
	s, err := ReadSMF(path)
	if err != nil {
		return nil, nil, err
	}

	raw := firstNoteTrack(s)
	if len(raw) == 0 {
		return nil, nil, errors.New("score contains no notes")
	}

	res := resolution(s)
	notes := make([]models.ScoreNote, 0, len(raw))
	for _, n := range raw {
		notes = append(notes, models.ScoreNote{
			Pitch:           n.pitch,
			OnsetDiv:        float64(n.onset),
			DurationQuarter: float64(n.duration) / float64(res),
		})
	}
	return notes, parseKeyEvents(s), nil
}

// ExtractPitches returns the ordered pitch sequence of the first
// note-bearing track, the input to fingerprint extraction. Files
// without notes yield an empty sequence, not an error, so a corpus
// build can skip them.
func ExtractPitches(path string) ([]int, error) {
	s, err := ReadSMF(path)
	if err != nil {
		return nil, err
	}

	raw := firstNoteTrack(s)
	pitches := make([]int, 0, len(raw))
	for _, n := range raw {
		pitches = append(pitches, n.pitch)
	}
	return pitches, nil
}

// WalkMIDIFiles returns all .mid/.midi files under root, sorted.
func WalkMIDIFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		lower := strings.ToLower(path)
		if strings.HasSuffix(lower, ".mid") || strings.HasSuffix(lower, ".midi") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// WriteBufferFile materializes a performed-note buffer as a transient
// SMF so identification runs through the same extraction path as the
// corpus build. Timestamps are normalized to start at zero. The caller
// must remove the file when done.
func WriteBufferFile(buffer []models.PerformedNote) (string, error) {
	if len(buffer) == 0 {
		return "", errors.New("empty buffer")
	}

	minTS := buffer[0].Timestamp
	for _, n := range buffer {
		if n.Timestamp < minTS {
			minTS = n.Timestamp
		}
	}

	clock := smf.MetricTicks(defaultResolution)
	// 120 BPM: ticks per second at the default resolution
	ticksPerSecond := float64(defaultResolution) * 2

	toTicks := func(seconds float64) int64 {
		if seconds < 0 {
			return 0
		}
		return int64(seconds * ticksPerSecond)
	}

	type tickEvent struct {
		ticks int64
		off   bool
		pitch uint8
		vel   uint8
	}
	events := make([]tickEvent, 0, len(buffer)*2)
	for _, n := range buffer {
		start := toTicks(n.Timestamp - minTS)
		events = append(events,
			tickEvent{ticks: start, pitch: uint8(n.Pitch), vel: uint8(n.Velocity)},
			tickEvent{ticks: start + defaultResolution/2, off: true, pitch: uint8(n.Pitch)},
		)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].ticks != events[j].ticks {
			return events[i].ticks < events[j].ticks
		}
		return events[i].off && !events[j].off
	})

	var tr smf.Track
	var prev int64
	for _, ev := range events {
		delta := uint32(ev.ticks - prev)
		prev = ev.ticks
		if ev.off {
			tr.Add(delta, midi.NoteOff(0, ev.pitch))
		} else {
			tr.Add(delta, midi.NoteOn(0, ev.pitch, ev.vel))
		}
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = clock
	s.Add(tr)

	f, err := os.CreateTemp("", "jibuffer-*.mid")
	if err != nil {
		return "", fmt.Errorf("error creating temp midi file: %v", err)
	}
	defer f.Close()

	if _, err := s.WriteTo(f); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("error writing temp midi file: %v", err)
	}
	return f.Name(), nil
}
