package score

import (
	"os"
	"strings"

	"justintune/models"
)

// Provider supplies the reference score for an identified piece.
// Absence is an expected outcome, reported via the bool, not an error.
type Provider interface {
	Load(piece string) (*models.ScoreData, bool, error)
}

// SMFProvider resolves piece display names to score MIDI files through
// the piece registry built alongside the fingerprint index.
type SMFProvider struct {
	pieces []models.Piece
}

// NewSMFProvider returns a provider over the registered pieces.
func NewSMFProvider(pieces []models.Piece) *SMFProvider {
	return &SMFProvider{pieces: pieces}
}

// Load finds the score file mapped to the piece name and parses it.
// Names match on equality or containment in either direction, since
// identification results may carry a "Composer: Track" display name
// while the registry holds a close variant.
func (p *SMFProvider) Load(piece string) (*models.ScoreData, bool, error) {
	entry, ok := p.find(piece)
	if !ok {
		return nil, false, nil
	}
	if _, err := os.Stat(entry.ScorePath); err != nil {
		return nil, false, nil
	}

	notes, keyEvents, err := ParseScore(entry.ScorePath)
	if err != nil {
		return nil, true, err
	}
	return &models.ScoreData{
		Piece:     entry.Name,
		Notes:     notes,
		KeyEvents: keyEvents,
	}, true, nil
}

func (p *SMFProvider) find(piece string) (models.Piece, bool) {
	for _, entry := range p.pieces {
		if entry.ScorePath == "" {
			continue
		}
		if entry.Name == piece ||
			strings.Contains(entry.Name, piece) ||
			strings.Contains(piece, entry.Name) {
			return entry, true
		}
	}
	return models.Piece{}, false
}
