// README: Seeker-side call-for-proposals round: broadcast, collect, choose, commit handshake.
package negotiation

import (
	"log/slog"
	"sort"
	"time"

	"carpool/internal/modules/transport"
	"carpool/internal/modules/world"
	"carpool/internal/types"
)

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseCollecting   Phase = "collecting"
	PhaseAwaitAck     Phase = "await_ack"
	PhaseAwaitConfirm Phase = "await_confirm"
	PhaseFinished     Phase = "finished"
)

type Outcome string

const (
	OutcomeNoProposals Outcome = "no_proposals"
	// OutcomeKept: offers arrived but the seeker keeps driving.
	OutcomeKept Outcome = "kept"
	// OutcomeWaiting: the seeker's plan changed; it will look again.
	OutcomeWaiting Outcome = "waiting"
	OutcomeMatched Outcome = "matched"
	// OutcomeRetry: the commit handshake failed (nack, disconfirm or timeout).
	OutcomeRetry Outcome = "retry"
)

type Offer struct {
	From  types.ID
	Price float64
}

type Result struct {
	Conversation string
	Outcome      Outcome
	Offers       int
	// Driver and Price are set once a commit was sent.
	Driver types.ID
	Price  float64
	// Blacklisted lists unchosen offerers not worth asking again.
	Blacklisted []types.ID
}

type RoundConfig struct {
	Self           types.ID
	Trip           world.Intention
	RequestTimeout time.Duration
	CommitTimeout  time.Duration
	ConfirmTimeout time.Duration
	// Policy is evaluated when offers are ranked, so a driver's plan changes
	// during collection are taken into account.
	Policy func() Policy
	Out    transport.Sender
	Log    *slog.Logger
	Now    func() time.Time
}

// Round is driven by its owner: Begin, then Handle for every message Wants
// accepts and Expire whenever Deadline passes, until one of them reports done.
type Round struct {
	cfg          RoundConfig
	conversation string
	phase        Phase
	deadline     time.Time
	pending      map[types.ID]bool
	offers       []Offer
	result       Result
}

func NewRound(cfg RoundConfig) *Round {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Policy == nil {
		cfg.Policy = Cheapest
	}
	conv := transport.NewConversation()
	return &Round{
		cfg:          cfg,
		conversation: conv,
		phase:        PhaseIdle,
		pending:      make(map[types.ID]bool),
		result:       Result{Conversation: conv},
	}
}

func (r *Round) Conversation() string { return r.conversation }

func (r *Round) Phase() Phase { return r.phase }

func (r *Round) Deadline() time.Time { return r.deadline }

func (r *Round) Result() Result { return r.result }

// Committed is true while the seeker waits on a commit it sent.
func (r *Round) Committed() bool {
	return r.phase == PhaseAwaitAck || r.phase == PhaseAwaitConfirm
}

// Begin broadcasts the request. It reports done when nobody could be asked.
func (r *Round) Begin(receivers []types.ID) bool {
	now := r.cfg.Now()
	r.phase = PhaseCollecting
	r.deadline = now.Add(r.cfg.RequestTimeout)
	delivered, err := transport.Broadcast(r.cfg.Out, transport.Message{
		Kind:         transport.KindRequest,
		From:         r.cfg.Self,
		Conversation: r.conversation,
		Trip:         r.cfg.Trip,
		ReplyBy:      r.deadline,
	}, receivers)
	if err != nil {
		r.cfg.Log.Debug("round: some requests undeliverable", "err", err)
	}
	for _, id := range delivered {
		r.pending[id] = true
	}
	r.cfg.Log.Debug("round: broadcast", "conversation", r.conversation, "receivers", len(r.pending))
	if len(r.pending) == 0 {
		return r.finish(OutcomeNoProposals)
	}
	return false
}

// Wants reports whether msg belongs to this round.
func (r *Round) Wants(msg transport.Message) bool {
	return msg.Conversation == r.conversation && !msg.Kind.ToResponder()
}

func (r *Round) Handle(msg transport.Message) bool {
	switch r.phase {
	case PhaseCollecting:
		return r.collect(msg)
	case PhaseAwaitAck:
		if msg.From == r.result.Driver {
			switch msg.Kind {
			case transport.KindCommitAck:
				r.phase = PhaseAwaitConfirm
				r.deadline = r.cfg.Now().Add(r.cfg.ConfirmTimeout)
				return false
			case transport.KindCommitNack, transport.KindDisconfirm:
				return r.finish(OutcomeRetry)
			}
		}
	case PhaseAwaitConfirm:
		if msg.From == r.result.Driver {
			switch msg.Kind {
			case transport.KindConfirm:
				return r.finish(OutcomeMatched)
			case transport.KindDisconfirm:
				return r.finish(OutcomeRetry)
			}
		}
	}
	switch msg.Kind {
	case transport.KindOffer:
		RejectLate(r.cfg.Out, msg)
	case transport.KindDecline:
		r.cfg.Log.Debug("round: late decline", "from", msg.From, "reason", msg.Reason)
	default:
		r.cfg.Log.Warn("round: unexpected message", "kind", msg.Kind, "from", msg.From, "phase", r.phase)
	}
	return r.phase == PhaseFinished
}

func (r *Round) collect(msg transport.Message) bool {
	if !r.pending[msg.From] {
		r.cfg.Log.Warn("round: reply from unknown responder", "kind", msg.Kind, "from", msg.From)
		if msg.Kind == transport.KindOffer {
			RejectLate(r.cfg.Out, msg)
		}
		return false
	}
	switch msg.Kind {
	case transport.KindOffer:
		r.offers = append(r.offers, Offer{From: msg.From, Price: msg.Price})
	case transport.KindDecline:
		r.cfg.Log.Debug("round: declined", "from", msg.From, "reason", msg.Reason)
	default:
		r.cfg.Log.Warn("round: unexpected reply", "kind", msg.Kind, "from", msg.From)
		return false
	}
	delete(r.pending, msg.From)
	if len(r.pending) == 0 {
		return r.decide()
	}
	return false
}

// Expire advances the round once its deadline has passed. Collection
// proceeds with whatever arrived; a stalled handshake is withdrawn.
func (r *Round) Expire(now time.Time) bool {
	if r.phase == PhaseIdle || r.phase == PhaseFinished || now.Before(r.deadline) {
		return r.phase == PhaseFinished
	}
	switch r.phase {
	case PhaseCollecting:
		return r.decide()
	default:
		r.cfg.Log.Debug("round: handshake timed out", "driver", r.result.Driver, "phase", r.phase)
		r.send(transport.KindWithdraw, r.result.Driver)
		return r.finish(OutcomeRetry)
	}
}

func (r *Round) decide() bool {
	r.result.Offers = len(r.offers)
	if len(r.offers) == 0 {
		return r.finish(OutcomeNoProposals)
	}
	sort.SliceStable(r.offers, func(i, j int) bool {
		if r.offers[i].Price != r.offers[j].Price {
			return r.offers[i].Price < r.offers[j].Price
		}
		return r.offers[i].From < r.offers[j].From
	})
	policy := r.cfg.Policy()
	best := r.offers[0]
	for _, o := range r.offers[1:] {
		r.send(transport.KindReject, o.From)
		if policy.Blacklists(o.Price) {
			r.result.Blacklisted = append(r.result.Blacklisted, o.From)
		}
	}

	switch policy.Decide(best.Price) {
	case DecisionKeep:
		r.send(transport.KindReject, best.From)
		return r.finish(OutcomeKept)
	case DecisionWait:
		r.send(transport.KindReject, best.From)
		return r.finish(OutcomeWaiting)
	}

	r.result.Driver = best.From
	r.result.Price = best.Price
	if err := r.cfg.Out.Send(r.message(transport.KindCommit, best.From)); err != nil {
		r.cfg.Log.Debug("round: commit undeliverable", "to", best.From, "err", err)
		return r.finish(OutcomeRetry)
	}
	r.phase = PhaseAwaitAck
	r.deadline = r.cfg.Now().Add(r.cfg.CommitTimeout)
	r.cfg.Log.Debug("round: committing", "driver", best.From, "price", best.Price)
	return false
}

func (r *Round) finish(o Outcome) bool {
	r.phase = PhaseFinished
	r.result.Outcome = o
	r.deadline = time.Time{}
	return true
}

func (r *Round) message(kind transport.Kind, to types.ID) transport.Message {
	return transport.Message{Kind: kind, From: r.cfg.Self, To: to, Conversation: r.conversation}
}

func (r *Round) send(kind transport.Kind, to types.ID) {
	if err := r.cfg.Out.Send(r.message(kind, to)); err != nil {
		r.cfg.Log.Debug("round: send failed", "kind", kind, "to", to, "err", err)
	}
}

// RejectLate turns down an offer that arrived after its round moved on so
// the offering driver is freed without waiting for its offer to expire.
func RejectLate(out transport.Sender, msg transport.Message) {
	if msg.Kind != transport.KindOffer {
		return
	}
	_ = out.Send(msg.Reply(transport.KindReject))
}
