package validation

import (
	"fmt"
	"regexp"

	"callpilot/internal/core/domain"
)

// MaxParticipants bounds the roster accepted in one snapshot.
const MaxParticipants = 1000

var (
	// ClientIDRegex validates bridge client ids
	ClientIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

	// SessionIDRegex validates platform session ids
	SessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)
)

// ValidateClientID validates the id a bridge client connects with.
func ValidateClientID(id string) error {
	if !ClientIDRegex.MatchString(id) {
		return fmt.Errorf("invalid client id %q (1-64 letters, digits, _ or -)", id)
	}
	return nil
}

func ValidateSessionID(id domain.SessionID) error {
	if !SessionIDRegex.MatchString(string(id)) {
		return fmt.Errorf("invalid session id %q", id)
	}
	return nil
}

// ValidateParticipants checks a reported roster: bounded size, well formed
// and unique session ids, at most one local participant.
func ValidateParticipants(participants []domain.Participant) error {
	if len(participants) > MaxParticipants {
		return fmt.Errorf("too many participants: %d (max %d)", len(participants), MaxParticipants)
	}

	seen := make(map[domain.SessionID]struct{}, len(participants))
	locals := 0
	for i, p := range participants {
		if err := ValidateSessionID(p.SessionID); err != nil {
			return fmt.Errorf("participant %d: %w", i, err)
		}
		if _, dup := seen[p.SessionID]; dup {
			return fmt.Errorf("participant %d: duplicate session id %q", i, p.SessionID)
		}
		seen[p.SessionID] = struct{}{}
		if p.IsLocalParticipant {
			locals++
		}
	}
	if locals > 1 {
		return fmt.Errorf("%d local participants reported", locals)
	}
	return nil
}
