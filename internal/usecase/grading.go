package usecase

import "github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"

// QualityScorer derives an SM-2 quality grade for an answered card when the client does not send one.
type QualityScorer interface {
	Score(card domain.SessionCard) int
}

// QualityScorerFunc adapts a function to QualityScorer.
type QualityScorerFunc func(card domain.SessionCard) int

// Score implements QualityScorer.
func (f QualityScorerFunc) Score(card domain.SessionCard) int {
	return f(card)
}

// BinaryScorer grades on correctness alone.
type BinaryScorer struct{}

const (
	binaryCorrectQuality   = 4
	binaryIncorrectQuality = 1
)

// Score implements QualityScorer.
func (BinaryScorer) Score(card domain.SessionCard) int {
	if card.IsCorrect != nil && *card.IsCorrect {
		return binaryCorrectQuality
	}
	return binaryIncorrectQuality
}
