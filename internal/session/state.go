package session

import (
	"fmt"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/shared"
)

// Phase is the tag of [AuthState].
type Phase int

const (
	Unauthenticated Phase = iota
	Authenticated
	Refreshing
	Expired
)

func (p Phase) String() string {
	switch p {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// AuthState is the client's view of its credentials.
//
// AccessToken is set only in [Authenticated] and [Refreshing]. UserID is the linked
// local account, when known.
type AuthState struct {
	Phase       Phase
	AccessToken string
	UserID      string
	User        *models.AccountView
}

// transitions lists the allowed moves. Every phase may also move to [Unauthenticated].
var transitions = map[Phase][]Phase{
	Unauthenticated: {Authenticated},
	Authenticated:   {Authenticated, Refreshing, Expired},
	Refreshing:      {Authenticated, Expired},
	Expired:         {Authenticated},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Phase) bool {
	if to == Unauthenticated {
		return true
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Phase) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", shared.ErrInvalidPhase, from, to)
	}
	return nil
}
