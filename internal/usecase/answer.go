package usecase

import (
	"strings"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
)

// NormalizeAnswer trims, lowercases and collapses whitespace runs to a single space.
func NormalizeAnswer(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// MatchAnswer reports whether answer equals any variant after normalization.
func MatchAnswer(answer string, variants []string) bool {
	normalized := NormalizeAnswer(answer)
	for _, variant := range variants {
		if NormalizeAnswer(variant) == normalized {
			return true
		}
	}
	return false
}

// ResolveDirection maps an orientation to the direction of one card. coin is consulted only for mixed orientation.
func ResolveDirection(orientation domain.Orientation, coin func() bool) domain.Direction {
	switch orientation {
	case domain.OrientationReversed:
		return domain.DirectionBackToFront
	case domain.OrientationMixed:
		if coin != nil && coin() {
			return domain.DirectionBackToFront
		}
		return domain.DirectionFrontToBack
	default:
		return domain.DirectionFrontToBack
	}
}
