package gateway

import (
	"strings"

	"github.com/alejandrodnm/dcavault/internal/domain"
)

// Substrings the venue uses in its rejection messages, lower-cased.
var (
	slippageMarkers = []string{"max spread assertion", "slippage", "minimum receive", "operation exceeds max spread limit"}
	fundsMarkers    = []string{"insufficient funds", "insufficient balance", "smaller than"}
)

// ClassifyVenueMessage turns a raw venue rejection into a typed VenueError.
func ClassifyVenueMessage(msg string) *domain.VenueError {
	lower := strings.ToLower(msg)
	reason := domain.SkipUnknownFailure
	switch {
	case containsAny(lower, slippageMarkers):
		reason = domain.SkipSlippageToleranceExceeded
	case containsAny(lower, fundsMarkers):
		reason = domain.SkipInsufficientFunds
	}
	return &domain.VenueError{Reason: reason, Message: msg}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
