package chat

// Role is the actor's position in a conversation.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleParticipant Role = "participant"
)

// Unlimited marks a MessageCap or Remaining with no bound.
const Unlimited = -1

// DefaultNegotiationCap is the number of messages a non-owner may send
// before being hired.
const DefaultNegotiationCap = 3

var negotiationIntents = []Intent{IntentQuestion, IntentClarification, IntentOffer, IntentCasual}

// Permissions is what an actor may do in a conversation right now.
type Permissions struct {
	CanWrite       bool     `json:"can_write"`
	AllowedIntents []Intent `json:"allowed_intents"`
	MessageCap     int      `json:"message_cap"`
	Remaining      int      `json:"remaining"`
}

// Allows reports whether intent may be used.
func (p Permissions) Allows(intent Intent) bool {
	for _, allowed := range p.AllowedIntents {
		if allowed == intent {
			return true
		}
	}
	return false
}

// Capped reports whether the actor has a finite message budget.
func (p Permissions) Capped() bool {
	return p.MessageCap != Unlimited
}

// Policy decides messaging permissions from conversation state.
type Policy struct {
	NegotiationCap int
}

// NewPolicy returns a policy with the given negotiation cap. Non-positive
// values fall back to DefaultNegotiationCap.
func NewPolicy(negotiationCap int) Policy {
	if negotiationCap <= 0 {
		negotiationCap = DefaultNegotiationCap
	}
	return Policy{NegotiationCap: negotiationCap}
}

// Evaluate returns the permissions for a role in stage after sent messages.
// The negotiation counter never resets.
func (p Policy) Evaluate(stage Stage, role Role, sent int) Permissions {
	switch stage {
	case StageNegotiation:
		perms := Permissions{
			CanWrite:       true,
			AllowedIntents: negotiationIntents,
			MessageCap:     Unlimited,
			Remaining:      Unlimited,
		}
		if role != RoleOwner {
			perms.MessageCap = p.NegotiationCap
			perms.Remaining = p.NegotiationCap - sent
			if perms.Remaining < 0 {
				perms.Remaining = 0
			}
		}
		return perms
	case StageWork:
		return Permissions{
			CanWrite:       true,
			AllowedIntents: allIntents,
			MessageCap:     Unlimited,
			Remaining:      Unlimited,
		}
	default:
		return Permissions{
			CanWrite:       false,
			AllowedIntents: []Intent{},
			MessageCap:     0,
			Remaining:      0,
		}
	}
}

// DefaultIntent is the intent applied when a message carries none.
func DefaultIntent(stage Stage) Intent {
	if stage == StageNegotiation {
		return IntentCasual
	}
	return IntentGeneral
}
