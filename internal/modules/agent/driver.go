// README: Driver actor: responds to requests, periodically seeks a cheaper ride, finalizes after fruitless rounds.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"carpool/internal/config"
	"carpool/internal/modules/directory"
	"carpool/internal/modules/itinerary"
	"carpool/internal/modules/negotiation"
	"carpool/internal/modules/report"
	"carpool/internal/modules/transport"
	"carpool/internal/modules/world"
	"carpool/internal/types"
)

// Driver is one goroutine. Every field below is touched only from Run.
type Driver struct {
	id       types.ID
	own      world.Intention
	cfg      config.NegotiationConfig
	bus      *transport.Bus
	mb       *transport.Mailbox
	dir      directory.Directory
	reporter Reporter
	engine   *itinerary.Engine
	log      *slog.Logger
	rng      *rand.Rand

	responder  *negotiation.Responder
	round      *negotiation.Round
	blacklist  *negotiation.Blacklist
	life       *Lifecycle
	remembered itinerary.Plan
	quit       bool

	ready     chan struct{}
	readyOnce sync.Once
}

func NewDriver(id types.ID, own world.Intention, deps Deps, seed int64) (*Driver, error) {
	mb, err := deps.Bus.Open(id)
	if err != nil {
		return nil, fmt.Errorf("new driver %s: %w", id, err)
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("actor", id, "role", types.RoleDriver)
	rng := rand.New(rand.NewSource(seed))

	d := &Driver{
		id:        id,
		own:       own,
		cfg:       deps.Config,
		bus:       deps.Bus,
		mb:        mb,
		dir:       deps.Directory,
		reporter:  deps.Reporter,
		engine:    deps.Engine,
		log:       log,
		rng:       rng,
		blacklist: negotiation.NewBlacklist(),
		life:      NewLifecycle(deps.Config.Period, deps.Config.Jitter, deps.Config.MaxAttempts, rng),
		ready:     make(chan struct{}),
	}
	d.responder = negotiation.NewResponder(negotiation.ResponderConfig{
		Self:     id,
		Own:      own,
		Engine:   deps.Engine,
		Out:      deps.Bus,
		OfferTTL: deps.Config.OfferTTL,
		Log:      log,
	})
	d.remembered = d.responder.Current()
	return d, nil
}

func (d *Driver) ID() types.ID { return d.id }

// Ready is closed once the driver is discoverable, or has failed trying.
func (d *Driver) Ready() <-chan struct{} { return d.ready }

func (d *Driver) markReady() { d.readyOnce.Do(func() { close(d.ready) }) }

// Run blocks until the driver quits, fails, or ctx is cancelled. A finalized
// driver keeps answering requests with a done decline until cancellation.
func (d *Driver) Run(ctx context.Context) error {
	defer d.bus.Close(d.id)
	defer d.markReady()

	if err := d.dir.Register(ctx, d.id, types.RoleDriver); err != nil {
		d.fail(ctx, fmt.Errorf("register: %w", err))
		return nil
	}
	d.markReady()
	d.log.Info("driver started", "trip", d.own, "direct_cost", d.responder.Current().Route.Cost())

	tick := time.NewTimer(d.life.NextDelay())
	defer tick.Stop()
	wake := time.NewTimer(time.Hour)
	defer wake.Stop()

	for !d.quit {
		d.armWake(wake)
		select {
		case <-ctx.Done():
			return nil
		case <-d.mb.Ready():
			d.drain(ctx)
		case now := <-wake.C:
			d.expire(ctx, now)
		case <-tick.C:
			if d.responder.State() == negotiation.StateDone {
				continue
			}
			tick.Reset(d.life.NextDelay())
			d.startRound(ctx)
		}
	}
	return nil
}

// armWake points wake at the earliest pending deadline.
func (d *Driver) armWake(wake *time.Timer) {
	var next time.Time
	if d.round != nil {
		next = d.round.Deadline()
	}
	if t, ok := d.responder.Deadline(); ok && (next.IsZero() || t.Before(next)) {
		next = t
	}
	if next.IsZero() {
		wake.Stop()
		return
	}
	wake.Reset(max(time.Until(next), 0))
}

func (d *Driver) drain(ctx context.Context) {
	for !d.quit {
		msg, ok := d.mb.Next()
		if !ok {
			return
		}
		d.dispatch(ctx, msg)
	}
}

func (d *Driver) dispatch(ctx context.Context, msg transport.Message) {
	if msg.Kind.ToResponder() {
		ev := d.responder.Handle(msg)
		if ev.Kind == negotiation.EventRejected && d.blacklist.Contains(ev.Counterparty) {
			d.blacklist.Remove(ev.Counterparty)
			d.log.Debug("blacklist cleared", "counterparty", ev.Counterparty)
		}
		return
	}
	if d.round != nil && d.round.Wants(msg) {
		d.step(ctx, d.round.Handle(msg))
		return
	}
	if msg.Kind == transport.KindConfirm {
		d.log.Warn("confirm for an abandoned round", "from", msg.From, "conversation", msg.Conversation)
	} else {
		d.log.Debug("stale message dropped", "kind", msg.Kind, "from", msg.From)
	}
	negotiation.RejectLate(d.bus, msg)
}

func (d *Driver) expire(ctx context.Context, now time.Time) {
	d.responder.Expire(now)
	if d.round != nil {
		d.step(ctx, d.round.Expire(now))
	}
}

func (d *Driver) step(ctx context.Context, done bool) {
	if !done {
		if d.round.Committed() && d.responder.State() != negotiation.StateSuspended {
			d.responder.Suspend()
		}
		return
	}
	d.finishRound(ctx)
}

// policy compares driving income with riding, and flags plan changes since
// the last deferred round.
func (d *Driver) policy() negotiation.Policy {
	cur := d.responder.Current()
	return negotiation.KeepIfProfitable(cur.Income(), !cur.SameAs(d.remembered))
}

func (d *Driver) startRound(ctx context.Context) {
	if d.round != nil || !d.life.TryBegin() {
		return
	}
	pool, err := d.dir.Find(ctx, types.RoleDriver)
	if err != nil {
		d.life.End(false)
		d.fail(ctx, fmt.Errorf("find drivers: %w", err))
		return
	}
	receivers := directory.PickRandom(negotiation.Eligible(pool, d.id, d.blacklist), d.cfg.MaxReceivers, d.rng)
	d.round = negotiation.NewRound(negotiation.RoundConfig{
		Self:           d.id,
		Trip:           d.own,
		RequestTimeout: d.cfg.RequestTimeout,
		CommitTimeout:  d.cfg.CommitTimeout,
		ConfirmTimeout: d.cfg.ConfirmTimeout,
		Policy:         d.policy,
		Out:            d.bus,
		Log:            d.log,
	})
	d.log.Debug("round started", "receivers", len(receivers), "attempts", d.life.Attempts())
	d.step(ctx, d.round.Begin(receivers))
}

func (d *Driver) finishRound(ctx context.Context) {
	res := d.round.Result()
	d.round = nil
	for _, id := range res.Blacklisted {
		d.blacklist.Add(id)
	}
	d.log.Debug("round finished", "outcome", res.Outcome, "offers", res.Offers, "blacklist", d.blacklist.Len())

	switch res.Outcome {
	case negotiation.OutcomeMatched:
		d.life.End(false)
		d.quitDriving(ctx, res)
		return
	case negotiation.OutcomeWaiting:
		d.remembered = d.responder.Current()
		d.life.End(false)
	default:
		d.life.End(true)
	}
	d.responder.Resume()
	if d.life.Exhausted() {
		d.finalize(ctx)
	}
}

// finalize commits to the current plan for good and confirms every rider.
func (d *Driver) finalize(ctx context.Context) {
	plan := d.responder.Finalize()
	direct := d.engine.Direct(d.own)
	d.log.Info("driver finalized", "route", plan.Route.String(), "riders", len(plan.Prices), "income", plan.Income())
	d.reporter.Report(ctx, report.Result{
		ActorID:     d.id,
		Role:        types.RoleDriver,
		Status:      report.StatusDriving,
		Trip:        d.own,
		Route:       plan.Route.Locations(),
		RouteLength: plan.Route.Length(),
		RouteCost:   plan.Route.Cost(),
		DirectCost:  direct.Route.Cost(),
		Prices:      plan.Prices,
		Income:      plan.Income(),
		Attempts:    d.life.Attempts(),
	})
	d.deregister(ctx)
}

// quitDriving hands the driver's own trip to the driver that confirmed it.
func (d *Driver) quitDriving(ctx context.Context, res negotiation.Result) {
	released := d.responder.Release()
	d.log.Info("driver rides instead", "with", res.Driver, "price", res.Price, "released", len(released))
	d.reporter.Report(ctx, report.Result{
		ActorID:    d.id,
		Role:       types.RoleDriver,
		Status:     report.StatusPassenger,
		Trip:       d.own,
		DirectCost: d.engine.Direct(d.own).Route.Cost(),
		Price:      res.Price,
		Income:     -res.Price,
		DriverID:   res.Driver,
		Attempts:   d.life.Attempts(),
	})
	d.deregister(ctx)
	d.quit = true
}

// fail parks the driver in a terminal state without stopping anyone else.
func (d *Driver) fail(ctx context.Context, err error) {
	d.log.Error("driver failed", "err", err)
	if d.responder.State() != negotiation.StateDone {
		d.responder.Release()
	}
	d.reporter.Report(ctx, report.Result{
		ActorID:    d.id,
		Role:       types.RoleDriver,
		Status:     report.StatusFailed,
		Trip:       d.own,
		DirectCost: d.engine.Direct(d.own).Route.Cost(),
		Attempts:   d.life.Attempts(),
	})
	d.deregister(ctx)
	d.quit = true
}

func (d *Driver) deregister(ctx context.Context) {
	if err := d.dir.Deregister(ctx, d.id); err != nil && !errors.Is(err, directory.ErrNotRegistered) {
		d.log.Error("deregister failed", "err", err)
	}
}
