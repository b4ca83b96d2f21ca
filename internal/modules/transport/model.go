// README: Negotiation message kinds and the envelope actors exchange.
package transport

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"carpool/internal/modules/world"
	"carpool/internal/types"
)

type Kind string

const (
	// seeker -> responder
	KindRequest  Kind = "request"
	KindCommit   Kind = "commit"
	KindReject   Kind = "reject"
	KindWithdraw Kind = "withdraw"

	// responder -> seeker
	KindOffer      Kind = "offer"
	KindDecline    Kind = "decline"
	KindCommitAck  Kind = "commit_ack"
	KindCommitNack Kind = "commit_nack"
	KindConfirm    Kind = "confirm"
	KindDisconfirm Kind = "disconfirm"
)

// ToResponder reports whether messages of kind k are addressed to a
// responder rather than to a seeker.
func (k Kind) ToResponder() bool {
	switch k {
	case KindRequest, KindCommit, KindReject, KindWithdraw:
		return true
	}
	return false
}

type DeclineReason string

const (
	ReasonBusy         DeclineReason = "busy"
	ReasonUnprofitable DeclineReason = "unprofitable"
	ReasonDone         DeclineReason = "done"
)

var (
	ErrUnknownActor   = errors.New("transport: unknown actor")
	ErrDuplicateActor = errors.New("transport: actor already has a mailbox")
	ErrMailboxClosed  = errors.New("transport: mailbox closed")
	ErrTimeout        = errors.New("transport: deadline exceeded")
)

// Message is the single envelope for every negotiation step. Conversation
// correlates all messages of one call-for-proposals round.
type Message struct {
	Kind         Kind
	From         types.ID
	To           types.ID
	Conversation string
	Trip         world.Intention
	Price        float64
	Reason       DeclineReason
	ReplyBy      time.Time
}

// Reply builds a response to m with the sender and receiver swapped.
func (m Message) Reply(kind Kind) Message {
	return Message{Kind: kind, From: m.To, To: m.From, Conversation: m.Conversation}
}

func NewConversation() string {
	return uuid.NewString()
}
