// README: Rider actor: sequential call-for-proposals rounds over a wait-with-predicate mailbox.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
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

type Rider struct {
	id       types.ID
	trip     world.Intention
	cfg      config.NegotiationConfig
	bus      *transport.Bus
	mb       *transport.Mailbox
	dir      directory.Directory
	reporter Reporter
	routes   itinerary.RouteService
	log      *slog.Logger
	rng      *rand.Rand
	life     *Lifecycle

	// commits this rider timed out on and withdrew, by driver
	withdrawn map[types.ID]negotiation.Result
}

func NewRider(id types.ID, trip world.Intention, deps Deps, seed int64) (*Rider, error) {
	mb, err := deps.Bus.Open(id)
	if err != nil {
		return nil, fmt.Errorf("new rider %s: %w", id, err)
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	rng := rand.New(rand.NewSource(seed))
	return &Rider{
		id:       id,
		trip:     trip,
		cfg:      deps.Config,
		bus:      deps.Bus,
		mb:       mb,
		dir:      deps.Directory,
		reporter: deps.Reporter,
		routes:   deps.Routes,
		log:      log.With("actor", id, "role", types.RoleRider),
		rng:      rng,
		life:     NewLifecycle(deps.Config.Period, deps.Config.Jitter, deps.Config.RiderMaxAttempts, rng),

		withdrawn: make(map[types.ID]negotiation.Result),
	}, nil
}

func (r *Rider) ID() types.ID { return r.id }

// Run negotiates until the rider is confirmed by a driver, runs out of
// attempts or retries, or ctx is cancelled.
func (r *Rider) Run(ctx context.Context) error {
	defer r.bus.Close(r.id)

	if err := r.dir.Register(ctx, r.id, types.RoleRider); err != nil {
		r.settle(ctx, report.StatusFailed, negotiation.Result{})
		r.log.Error("rider failed", "err", err)
		return nil
	}
	defer func() {
		if err := r.dir.Deregister(context.WithoutCancel(ctx), r.id); err != nil && !errors.Is(err, directory.ErrNotRegistered) {
			r.log.Error("deregister failed", "err", err)
		}
	}()

	retries := 0
	for {
		if res, ok := r.dropStale(); ok {
			r.settle(ctx, report.StatusPassenger, res)
			return nil
		}
		r.life.TryBegin()
		res, err := r.negotiate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.life.End(false)
			r.log.Error("rider failed", "err", err)
			r.settle(ctx, report.StatusFailed, negotiation.Result{})
			return nil
		}
		r.log.Debug("round finished", "outcome", res.Outcome, "offers", res.Offers)

		switch res.Outcome {
		case negotiation.OutcomeMatched:
			r.life.End(false)
			r.leave(ctx, res)
			return nil
		case negotiation.OutcomeRetry:
			r.life.End(false)
			if res.Driver != "" {
				r.withdrawn[res.Driver] = res
			}
			retries++
			if retries > r.cfg.MaxRetries {
				r.leave(ctx, res)
				return nil
			}
		default:
			r.life.End(true)
			if r.life.Exhausted() {
				r.leave(ctx, res)
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.life.NextDelay()):
		}
	}
}

// negotiate runs one round to completion. Messages of other conversations
// stay queued until the next dropStale.
func (r *Rider) negotiate(ctx context.Context) (negotiation.Result, error) {
	pool, err := r.dir.Find(ctx, types.RoleDriver)
	if err != nil {
		return negotiation.Result{}, fmt.Errorf("find drivers: %w", err)
	}
	receivers := directory.PickRandom(negotiation.Eligible(pool, r.id, nil), r.cfg.MaxReceivers, r.rng)
	round := negotiation.NewRound(negotiation.RoundConfig{
		Self:           r.id,
		Trip:           r.trip,
		RequestTimeout: r.cfg.RequestTimeout,
		CommitTimeout:  r.cfg.CommitTimeout,
		ConfirmTimeout: r.cfg.ConfirmTimeout,
		Out:            r.bus,
		Log:            r.log,
	})
	if round.Begin(receivers) {
		return round.Result(), nil
	}
	for {
		msg, err := r.mb.Receive(ctx, round.Wants, round.Deadline())
		switch {
		case errors.Is(err, transport.ErrTimeout):
			if round.Expire(time.Now()) {
				return round.Result(), nil
			}
		case err != nil:
			return negotiation.Result{}, err
		default:
			if round.Handle(msg) {
				return round.Result(), nil
			}
		}
	}
}

// dropStale empties the mailbox between rounds. A confirm for a withdrawn
// commit means that driver finalized first and carries this rider anyway.
func (r *Rider) dropStale() (negotiation.Result, bool) {
	var confirmed negotiation.Result
	found := false
	for _, msg := range r.mb.Discard(func(transport.Message) bool { return true }) {
		if res, ok := r.lateConfirm(msg); ok {
			if !found {
				confirmed, found = res, true
				continue
			}
			r.log.Warn("second late confirm ignored", "from", msg.From, "kept", confirmed.Driver)
			continue
		}
		r.log.Debug("stale message dropped", "kind", msg.Kind, "from", msg.From)
		negotiation.RejectLate(r.bus, msg)
	}
	return confirmed, found
}

func (r *Rider) lateConfirm(msg transport.Message) (negotiation.Result, bool) {
	if msg.Kind != transport.KindConfirm {
		return negotiation.Result{}, false
	}
	res, ok := r.withdrawn[msg.From]
	if !ok || res.Conversation != msg.Conversation {
		return negotiation.Result{}, false
	}
	res.Outcome = negotiation.OutcomeMatched
	return res, true
}

// leave closes the mailbox and settles with the round's outcome, unless a
// withdrawn driver confirmed before the mailbox closed.
func (r *Rider) leave(ctx context.Context, res negotiation.Result) {
	r.bus.Close(r.id)
	late, ok := r.dropStale()
	switch {
	case ok && res.Outcome == negotiation.OutcomeMatched:
		r.log.Warn("late confirm after a new match", "from", late.Driver, "matched", res.Driver)
		r.settle(ctx, report.StatusPassenger, res)
	case ok:
		r.log.Info("withdrawn commit confirmed late", "driver", late.Driver)
		r.settle(ctx, report.StatusPassenger, late)
	case res.Outcome == negotiation.OutcomeMatched:
		r.settle(ctx, report.StatusPassenger, res)
	default:
		r.settle(ctx, report.StatusUnmatched, res)
	}
}

func (r *Rider) settle(ctx context.Context, status report.Status, res negotiation.Result) {
	direct := r.routes.RouteBetween(r.trip.Origin, r.trip.Destination)
	out := report.Result{
		ActorID:    r.id,
		Role:       types.RoleRider,
		Status:     status,
		Trip:       r.trip,
		DirectCost: direct.Cost(),
		Attempts:   r.life.Attempts(),
	}
	if status == report.StatusPassenger {
		out.DriverID = res.Driver
		out.Price = res.Price
		out.Income = -res.Price
	}
	r.log.Info("rider settled", "status", status, "driver", res.Driver, "price", res.Price)
	r.reporter.Report(ctx, out)
}
