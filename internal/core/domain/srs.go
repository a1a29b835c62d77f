package domain

import (
	"math"
	"time"
)

const (
	// DefaultEaseFactor is the starting ease of a never-reviewed card.
	DefaultEaseFactor = 2.5
	// MinEaseFactor bounds the ease from below.
	MinEaseFactor = 1.3

	MinQuality = 0
	MaxQuality = 5
	// PassingQuality is the lowest quality that counts as recalled.
	PassingQuality = 3
)

// SrsState is the spaced-repetition memory state of a card for a user.
type SrsState struct {
	UserSub      string
	CardSub      string
	Repetitions  int
	IntervalDays int
	EaseFactor   float64
	NextReview   time.Time
	LastReview   *time.Time
}

// IsDue reports whether the card should be reviewed at the given moment.
func (s SrsState) IsDue(at time.Time) bool {
	return !s.NextReview.After(at)
}

// ValidQuality reports whether q is an SM-2 quality grade.
func ValidQuality(q int) bool {
	return q >= MinQuality && q <= MaxQuality
}

// NewSrsState returns the initial state of a card that has never been graded.
func NewSrsState(userSub, cardSub string, at time.Time) SrsState {
	return SrsState{
		UserSub:    userSub,
		CardSub:    cardSub,
		EaseFactor: DefaultEaseFactor,
		NextReview: at,
	}
}

// NextSrsState applies one SM-2 grading step to the current state.
func NextSrsState(current SrsState, quality int, reviewedAt time.Time) SrsState {
	if quality < MinQuality {
		quality = MinQuality
	}
	if quality > MaxQuality {
		quality = MaxQuality
	}

	next := current
	if next.EaseFactor <= 0 {
		next.EaseFactor = DefaultEaseFactor
	}

	if quality < PassingQuality {
		next.Repetitions = 0
		next.IntervalDays = 1
	} else {
		switch next.Repetitions {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(next.IntervalDays) * next.EaseFactor))
		}
		next.Repetitions++
	}

	miss := float64(MaxQuality - quality)
	next.EaseFactor = next.EaseFactor + (0.1 - miss*(0.08+miss*0.02))
	if next.EaseFactor < MinEaseFactor {
		next.EaseFactor = MinEaseFactor
	}

	reviewed := reviewedAt.UTC()
	next.LastReview = &reviewed
	next.NextReview = reviewed.Add(time.Duration(next.IntervalDays) * 24 * time.Hour)
	return next
}
