// README: Driver-side call-for-proposals responder: one outstanding candidate plan at a time.
package negotiation

import (
	"errors"
	"log/slog"
	"time"

	"carpool/internal/modules/itinerary"
	"carpool/internal/modules/transport"
	"carpool/internal/modules/world"
	"carpool/internal/types"
)

type State string

const (
	StateOpen      State = "open"
	StateOffered   State = "offered"
	StateSuspended State = "suspended"
	StateDone      State = "done"
)

// AllowedTransitions represents the responder state flow as code.
var AllowedTransitions = map[State][]State{
	StateOpen:      {StateOffered, StateSuspended, StateDone},
	StateOffered:   {StateOpen, StateSuspended, StateDone},
	StateSuspended: {StateOpen, StateDone},
}

func CanTransition(from, to State) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

type EventKind string

const (
	EventNone      EventKind = ""
	EventOffered   EventKind = "offered"
	EventDeclined  EventKind = "declined"
	EventCommitted EventKind = "committed"
	EventNacked    EventKind = "nacked"
	// EventRejected means the counterparty explicitly turned our offer down.
	EventRejected  EventKind = "rejected"
	EventWithdrawn EventKind = "withdrawn"
	EventExpired   EventKind = "expired"
)

// Event tells the owning actor what a step changed.
type Event struct {
	Kind         EventKind
	Counterparty types.ID
}

type Passenger struct {
	Conversation string
	Trip         world.Intention
}

type candidate struct {
	owner        types.ID
	conversation string
	trip         world.Intention
	plan         itinerary.Plan
	price        float64
	expires      time.Time
}

type ResponderConfig struct {
	Self     types.ID
	Own      world.Intention
	Engine   *itinerary.Engine
	Out      transport.Sender
	OfferTTL time.Duration
	Log      *slog.Logger
	Now      func() time.Time
}

// Responder is owned by one driver goroutine and is not safe for concurrent use.
type Responder struct {
	self   types.ID
	own    world.Intention
	engine *itinerary.Engine
	out    transport.Sender
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time

	state   State
	current itinerary.Plan
	cand    *candidate
	served  map[types.ID]Passenger
}

func NewResponder(cfg ResponderConfig) *Responder {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Responder{
		self:    cfg.Self,
		own:     cfg.Own,
		engine:  cfg.Engine,
		out:     cfg.Out,
		ttl:     cfg.OfferTTL,
		log:     cfg.Log,
		now:     cfg.Now,
		state:   StateOpen,
		current: cfg.Engine.Direct(cfg.Own),
		served:  make(map[types.ID]Passenger),
	}
}

func (r *Responder) State() State { return r.state }

// Current returns a copy of the committed plan.
func (r *Responder) Current() itinerary.Plan { return r.current.Clone() }

func (r *Responder) Serves(id types.ID) bool {
	_, ok := r.served[id]
	return ok
}

// Deadline is when the outstanding offer expires, if there is one.
func (r *Responder) Deadline() (time.Time, bool) {
	if r.cand == nil {
		return time.Time{}, false
	}
	return r.cand.expires, true
}

func (r *Responder) transition(to State) {
	if r.state == to {
		return
	}
	if !CanTransition(r.state, to) {
		r.log.Warn("responder: illegal transition", "from", r.state, "to", to)
		return
	}
	r.state = to
}

// Handle processes one responder-bound message in mailbox order.
func (r *Responder) Handle(msg transport.Message) Event {
	switch msg.Kind {
	case transport.KindRequest:
		return r.handleRequest(msg)
	case transport.KindCommit:
		return r.handleCommit(msg)
	case transport.KindReject:
		return r.handleReject(msg)
	case transport.KindWithdraw:
		return r.handleWithdraw(msg)
	}
	r.log.Warn("responder: unexpected message", "kind", msg.Kind, "from", msg.From)
	return Event{}
}

func (r *Responder) handleRequest(msg transport.Message) Event {
	switch {
	case r.state == StateDone:
		return r.decline(msg, transport.ReasonDone)
	case r.state != StateOpen, r.Serves(msg.From):
		return r.decline(msg, transport.ReasonBusy)
	}

	q, err := r.engine.Quote(r.own, r.current, msg.From, msg.Trip)
	if err != nil {
		r.log.Warn("responder: quote failed", "from", msg.From, "err", err)
		return r.decline(msg, transport.ReasonUnprofitable)
	}
	if !q.Profitable {
		r.log.Debug("responder: refusing unprofitable request", "from", msg.From, "income", q.Candidate.Income())
		return r.decline(msg, transport.ReasonUnprofitable)
	}

	expires := r.now().Add(r.ttl)
	offer := msg.Reply(transport.KindOffer)
	offer.Price = q.Price
	offer.ReplyBy = expires
	if err := r.out.Send(offer); err != nil {
		r.log.Debug("responder: offer undeliverable", "to", msg.From, "err", err)
		return Event{}
	}
	r.cand = &candidate{
		owner:        msg.From,
		conversation: msg.Conversation,
		trip:         msg.Trip,
		plan:         q.Candidate,
		price:        q.Price,
		expires:      expires,
	}
	r.transition(StateOffered)
	r.log.Debug("responder: offered", "to", msg.From, "price", q.Price, "route", q.Candidate.Route.String())
	return Event{Kind: EventOffered, Counterparty: msg.From}
}

func (r *Responder) decline(msg transport.Message, reason transport.DeclineReason) Event {
	reply := msg.Reply(transport.KindDecline)
	reply.Reason = reason
	if err := r.out.Send(reply); err != nil {
		r.log.Debug("responder: decline undeliverable", "to", msg.From, "err", err)
	}
	return Event{Kind: EventDeclined, Counterparty: msg.From}
}

func (r *Responder) matches(msg transport.Message) bool {
	return r.cand != nil && r.cand.owner == msg.From && r.cand.conversation == msg.Conversation
}

func (r *Responder) handleCommit(msg transport.Message) Event {
	if r.state != StateOffered || !r.matches(msg) {
		r.log.Debug("responder: commit without matching offer", "from", msg.From, "state", r.state)
		r.send(msg.Reply(transport.KindCommitNack))
		return Event{Kind: EventNacked, Counterparty: msg.From}
	}
	c := r.cand
	r.cand = nil
	r.current = c.plan
	r.served[c.owner] = Passenger{Conversation: c.conversation, Trip: c.trip}
	r.transition(StateOpen)
	r.send(msg.Reply(transport.KindCommitAck))
	r.log.Info("responder: committed", "rider", c.owner, "price", c.price, "income", r.current.Income())
	return Event{Kind: EventCommitted, Counterparty: c.owner}
}

func (r *Responder) handleReject(msg transport.Message) Event {
	if r.matches(msg) {
		r.discard()
	}
	return Event{Kind: EventRejected, Counterparty: msg.From}
}

func (r *Responder) handleWithdraw(msg transport.Message) Event {
	if r.cand != nil && r.cand.owner == msg.From {
		r.discard()
		return Event{Kind: EventWithdrawn, Counterparty: msg.From}
	}
	p, ok := r.served[msg.From]
	if !ok || p.Conversation != msg.Conversation {
		return Event{}
	}
	if r.state == StateDone {
		r.log.Warn("responder: withdraw after finalize ignored", "from", msg.From)
		return Event{}
	}
	next, err := r.engine.Without(r.own, r.current, msg.From)
	if err != nil {
		r.log.Error("responder: re-plan after withdraw failed", "from", msg.From, "err", err)
		return Event{}
	}
	r.current = next
	delete(r.served, msg.From)
	r.log.Info("responder: rider withdrew", "rider", msg.From, "income", r.current.Income())
	return Event{Kind: EventWithdrawn, Counterparty: msg.From}
}

// Expire drops the outstanding offer once its reply-by time has passed.
func (r *Responder) Expire(now time.Time) Event {
	if r.cand == nil || now.Before(r.cand.expires) {
		return Event{}
	}
	owner := r.cand.owner
	r.discard()
	r.log.Debug("responder: offer expired", "rider", owner)
	return Event{Kind: EventExpired, Counterparty: owner}
}

func (r *Responder) discard() {
	r.cand = nil
	if r.state == StateOffered {
		r.transition(StateOpen)
	}
}

// Suspend refuses new requests while the owning driver is committing to
// ride elsewhere. The outstanding offer, if any, is dropped.
func (r *Responder) Suspend() {
	if r.state == StateDone {
		return
	}
	r.cand = nil
	r.transition(StateSuspended)
}

func (r *Responder) Resume() {
	if r.state == StateSuspended {
		r.transition(StateOpen)
	}
}

// Finalize freezes the current plan and confirms every served passenger.
// A passenger whose mailbox is gone has left and is planned out.
func (r *Responder) Finalize() itinerary.Plan {
	r.cand = nil
	r.transition(StateDone)
	for _, id := range r.current.Riders() {
		p := r.served[id]
		err := r.out.Send(transport.Message{Kind: transport.KindConfirm, From: r.self, To: id, Conversation: p.Conversation})
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrUnknownActor), errors.Is(err, transport.ErrMailboxClosed):
			next, perr := r.engine.Without(r.own, r.current, id)
			if perr != nil {
				r.log.Error("responder: re-plan without departed rider failed", "rider", id, "err", perr)
				continue
			}
			r.current = next
			delete(r.served, id)
			r.log.Info("responder: confirmed rider already gone", "rider", id)
		default:
			r.log.Warn("responder: send failed", "kind", transport.KindConfirm, "to", id, "err", err)
		}
	}
	return r.current.Clone()
}

// Release gives up driving: every served passenger is disconfirmed and the
// responder stops accepting work.
func (r *Responder) Release() []types.ID {
	r.cand = nil
	r.transition(StateDone)
	released := r.current.Riders()
	for _, id := range released {
		p := r.served[id]
		r.send(transport.Message{Kind: transport.KindDisconfirm, From: r.self, To: id, Conversation: p.Conversation})
	}
	r.served = make(map[types.ID]Passenger)
	r.current = r.engine.Direct(r.own)
	return released
}

func (r *Responder) send(msg transport.Message) {
	if err := r.out.Send(msg); err != nil && !errors.Is(err, transport.ErrUnknownActor) {
		r.log.Warn("responder: send failed", "kind", msg.Kind, "to", msg.To, "err", err)
	}
}
