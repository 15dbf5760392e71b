package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"justintune/fingerprint"
	"justintune/keysig"
	"justintune/models"
	"justintune/score"
	"justintune/tuning"
	"justintune/utils"
)

// State is the lifecycle stage of one performer session.
type State int

const (
	StateIdle State = iota
	StateCollecting
	StateIdentifying
	StateIdentified
	StateFollowing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCollecting:
		return "collecting_midi"
	case StateIdentifying:
		return "identifying_piece"
	case StateIdentified:
		return "piece_identified"
	case StateFollowing:
		return "score_following_active"
	case StateError:
		return "error_state"
	default:
		return "unknown"
	}
}

// Emitter pushes an event back to the session's client.
type Emitter func(event string, payload interface{})

const (
	maxWirePredictions = 5
	maxWireKeyChanges  = 3
)

// Status is a point-in-time snapshot of a session, emitted as
// system_status and served by the status request.
type Status struct {
	State               string  `json:"state"`
	BufferSize          int     `json:"buffer_size"`
	Attempts            int     `json:"identification_attempts"`
	Piece               string  `json:"piece,omitempty"`
	Position            int     `json:"position"`
	TotalNotes          int     `json:"total_notes"`
	PredictionSessionID int     `json:"prediction_session_id,omitempty"`
	Confidence          float64 `json:"confidence,omitempty"`
	Key                 string  `json:"current_key,omitempty"`
	IsMinor             bool    `json:"is_minor,omitempty"`
	KeySignatures       int     `json:"key_signatures,omitempty"`
}

// Controller runs the two-stage pipeline for a single performer: it
// buffers live notes, fires gated identification attempts against the
// fingerprint index, and once a piece is known follows the score and
// streams just intonation tuning for the upcoming notes.
//
// All entry points lock the controller, so callers may invoke it from
// any goroutine; the transport calls HandleNote synchronously to keep
// per-session note order.
type Controller struct {
	mu sync.Mutex

	cfg      Config
	index    *fingerprint.Index
	provider score.Provider
	aligners score.AlignerFactory
	emit     Emitter
	now      func() time.Time
	identify func([]models.PerformedNote) ([]models.IdentificationResult, error)
	logger   *slog.Logger

	state       State
	buffer      []models.PerformedNote
	attempts    int
	lastAttempt time.Time
	identifying bool

	// epoch invalidates in-flight identification results after a reset.
	epoch uint64

	piece       string
	confidence  float64
	scoreData   *models.ScoreData
	timeline    *keysig.Timeline
	aligner     score.Aligner
	position    int
	lookaheadN  int

	// predictID is the current prediction session; identSuccesses
	// counts successful identifications over the controller's lifetime
	// and is deliberately not cleared on reset, so ids never repeat
	// within one session.
	predictID      int
	identSuccesses int
}

// NewController wires a session around shared read-only collaborators.
// The fingerprint index and provider are shared across sessions; the
// aligner is built per session once a score is loaded.
func NewController(cfg Config, index *fingerprint.Index, provider score.Provider, aligners score.AlignerFactory, emit Emitter) *Controller {
	if aligners == nil {
		aligners = score.NewWindowAligner
	}
	c := &Controller{
		cfg:      cfg,
		index:    index,
		provider: provider,
		aligners: aligners,
		emit:     emit,
		now:      time.Now,
		logger:   utils.GetLogger(),
		state:    StateIdle,
	}
	c.identify = c.identifyBuffer
	return c
}

// SetEmitter rebinds the session to a new connection after a reconnect.
func (c *Controller) SetEmitter(emit Emitter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emit = emit
}

// HandleNote processes one live note. Note-offs (velocity 0) are
// dropped. Any panic from a collaborator moves the session to the
// error state instead of taking the server down. Every inbound note
// gets a system_status echo, whatever state it lands in.
func (c *Controller) HandleNote(note models.PerformedNote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() { c.emitLocked("system_status", c.statusLocked()) }()
	defer c.recoverToError()

	if note.Velocity == 0 {
		return
	}

	switch c.state {
	case StateIdle:
		c.state = StateCollecting
		c.bufferNote(note)
		c.maybeIdentify()
	case StateCollecting:
		c.bufferNote(note)
		c.maybeIdentify()
	case StateIdentifying:
		c.bufferNote(note)
	case StateIdentified, StateFollowing:
		c.followNote(note)
	case StateError:
		// Stay down until reset.
	}
}

// Reset returns the session to idle. A running identification keeps
// going but its result is discarded via the epoch check.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.state = StateIdle
	c.buffer = nil
	c.attempts = 0
	c.lastAttempt = time.Time{}
	c.identifying = false
	c.clearScore()

	c.emitLocked("system_status", c.statusLocked())
}

// Status reports the current session snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	st := Status{
		State:      c.state.String(),
		BufferSize: len(c.buffer),
		Attempts:   c.attempts,
		Piece:      c.piece,
		Position:   c.position,
		Confidence: c.confidence,
	}
	if c.scoreData != nil {
		st.TotalNotes = len(c.scoreData.Notes)
		st.PredictionSessionID = c.predictID
		st.KeySignatures = c.timeline.Len()
		key := c.keyAtPosition(c.position)
		st.Key = key.Key
		st.IsMinor = key.IsMinor
	}
	return st
}

func (c *Controller) bufferNote(note models.PerformedNote) {
	if len(c.buffer) >= c.cfg.BufferCapacity {
		copy(c.buffer, c.buffer[1:])
		c.buffer = c.buffer[:len(c.buffer)-1]
	}
	c.buffer = append(c.buffer, note)
}

// maybeIdentify fires an identification attempt when all three gates
// open: enough notes buffered, the retry interval elapsed, and no
// attempt already in flight.
func (c *Controller) maybeIdentify() {
	if c.identifying {
		return
	}
	if len(c.buffer) < c.cfg.NoteThreshold {
		return
	}
	now := c.now()
	if !c.lastAttempt.IsZero() && now.Sub(c.lastAttempt) < c.cfg.IdentifyInterval {
		return
	}

	c.identifying = true
	c.lastAttempt = now
	c.attempts++
	c.state = StateIdentifying

	snapshot := make([]models.PerformedNote, len(c.buffer))
	copy(snapshot, c.buffer)
	epoch := c.epoch

	go c.runIdentification(snapshot, epoch)
}

// runIdentification materializes the buffer to a temporary MIDI file so
// the query takes the exact same extraction path as the corpus build,
// then votes it against the index. It runs off the session lock.
func (c *Controller) runIdentification(buffer []models.PerformedNote, epoch uint64) {
	results, err := c.identify(buffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.recoverToError()

	if c.epoch != epoch {
		// Session was reset while we were working; drop everything.
		return
	}
	c.identifying = false

	if err != nil {
		// An internal fault is not a low-confidence result: halt the
		// session until an explicit reset.
		c.logger.ErrorContext(context.Background(), "identification attempt failed", slog.Any("error", err))
		c.state = StateError
		c.emitLocked("error", map[string]interface{}{"message": fmt.Sprintf("identification failed: %s", err)})
		return
	}

	if len(results) == 0 || results[0].Confidence < c.cfg.ConfidenceThreshold {
		c.state = StateCollecting
		c.emitLocked("status", map[string]interface{}{
			"message": "no confident match yet, keep playing",
			"attempt": c.attempts,
			"results": results,
		})
		return
	}

	top := results[0]
	c.piece = top.Piece
	c.confidence = top.Confidence
	c.state = StateIdentified
	c.emitLocked("piece_identified", map[string]interface{}{
		"piece":      top.Piece,
		"confidence": top.Confidence,
		"matches":    top.Matches,
		"coverage":   top.Coverage,
		"results":    results,
	})

	c.startFollowing(top.Piece)
}

func (c *Controller) identifyBuffer(buffer []models.PerformedNote) ([]models.IdentificationResult, error) {
	path, err := score.WriteBufferFile(buffer)
	if err != nil {
		return nil, fmt.Errorf("error writing buffer file: %s", err)
	}
	defer os.Remove(path)

	pitches, err := score.ExtractPitches(path)
	if err != nil {
		return nil, fmt.Errorf("error extracting buffer pitches: %s", err)
	}
	return c.index.Identify(pitches, c.cfg.TopK), nil
}

// startFollowing loads the identified piece's score and arms the
// aligner. A missing score is a normal outcome: the session stays in
// the identified state and the client is told tuning is unavailable.
func (c *Controller) startFollowing(piece string) {
	data, found, err := c.provider.Load(piece)
	if err != nil {
		c.logger.ErrorContext(context.Background(), "score load failed",
			slog.String("piece", piece), slog.Any("error", err))
		c.emitLocked("score_following_failed", map[string]interface{}{
			"piece":   piece,
			"message": fmt.Sprintf("failed to load score: %s", err),
		})
		return
	}
	if !found {
		c.emitLocked("score_not_available", map[string]interface{}{
			"piece":   piece,
			"message": "no reference score registered for this piece",
		})
		return
	}

	c.scoreData = data
	c.timeline = keysig.Build(data.KeyEvents)
	c.aligner = c.aligners(data.Notes)
	c.position = 0
	c.identSuccesses++
	c.predictID = c.identSuccesses
	c.lookaheadN = predictedCount(c.cfg)
	c.state = StateFollowing

	c.emitLocked("score_following_started", map[string]interface{}{
		"piece":                 data.Piece,
		"total_notes":           len(data.Notes),
		"prediction_session_id": c.predictID,
	})
}

// followNote aligns one performed note and streams the tuning window.
// An aligner miss (or panic) falls back to advancing one position so a
// wrong note never stalls the session.
func (c *Controller) followNote(note models.PerformedNote) {
	if c.scoreData == nil {
		return
	}

	pos, ok := c.alignSafe(note)
	if ok {
		c.position = clampPosition(pos, len(c.scoreData.Notes))
	} else if c.position < len(c.scoreData.Notes)-1 {
		c.position++
	}

	predicted := tuning.Predict(c.position, c.cfg.DefaultTempoBPM, c.cfg.LookaheadSeconds,
		c.scoreData.Notes, c.timeline, c.predictID)
	assignments := tuning.CalculateTuning(predicted, c.keyAtPosition)
	changes := c.timeline.UpcomingChanges(c.position, c.scoreData.Notes, c.lookaheadN)

	total := len(c.scoreData.Notes)
	progress := 0.0
	if total > 0 {
		progress = float64(c.position) / float64(total)
	}

	// The tuning table covers the whole lookahead window; the note and
	// key-change lists on the wire stay short.
	wirePredicted := predicted
	if len(wirePredicted) > maxWirePredictions {
		wirePredicted = wirePredicted[:maxWirePredictions]
	}
	wireChanges := changes
	if len(wireChanges) > maxWireKeyChanges {
		wireChanges = wireChanges[:maxWireKeyChanges]
	}

	c.emitLocked("position_update", map[string]interface{}{
		"position":              c.position,
		"total_notes":           total,
		"progress":              progress,
		"piece":                 c.scoreData.Piece,
		"predicted_notes":       wirePredicted,
		"tuning":                assignments,
		"key_changes":           wireChanges,
		"current_key":           c.keyAtPosition(c.position),
		"prediction_session_id": c.predictID,
	})
}

// alignSafe isolates aligner faults: a panicking aligner counts as a
// miss rather than an error state, since the fallback advance keeps
// the session usable.
func (c *Controller) alignSafe(note models.PerformedNote) (pos int, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(context.Background(), "aligner panic", slog.Any("error", r))
			pos, ok = 0, false
		}
	}()
	return c.aligner.Align(note)
}

func (c *Controller) keyAtPosition(position int) models.KeyEvent {
	if position < 0 || position >= len(c.scoreData.Notes) {
		return c.timeline.First()
	}
	return c.timeline.KeyAt(c.scoreData.Notes[position].OnsetDiv)
}

func (c *Controller) clearScore() {
	c.piece = ""
	c.confidence = 0
	c.scoreData = nil
	c.timeline = nil
	c.aligner = nil
	c.position = 0
	c.predictID = 0
	c.lookaheadN = 0
}

// recoverToError converts a panic inside note handling into the error
// state so one bad session cannot crash the server.
func (c *Controller) recoverToError() {
	if r := recover(); r != nil {
		c.logger.ErrorContext(context.Background(), "session panic", slog.Any("error", r))
		c.state = StateError
		c.emitLocked("error", map[string]interface{}{
			"message": fmt.Sprintf("internal session error: %v", r),
		})
	}
}

func (c *Controller) emitLocked(event string, payload interface{}) {
	if c.emit != nil {
		c.emit(event, payload)
	}
}

// clampPosition keeps a score position inside [0, total-1], whatever
// the aligner returned.
func clampPosition(pos, total int) int {
	if pos < 0 {
		return 0
	}
	if pos > total-1 {
		return total - 1
	}
	return pos
}

// predictedCount is the number of notes the lookahead horizon covers at
// the configured tempo, assuming a sixteenth-note grid.
func predictedCount(cfg Config) int {
	if cfg.DefaultTempoBPM <= 0 {
		return 0
	}
	secondsPerNote := 60.0 / (cfg.DefaultTempoBPM * 4)
	return int(cfg.LookaheadSeconds / secondsPerNote)
}
