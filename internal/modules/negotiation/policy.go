// README: Seeker acceptance policies and the per-driver blacklist.
package negotiation

import (
	"sort"

	"carpool/internal/types"
)

type PolicyKind string

const (
	// PolicyCheapest always commits to the cheapest offer.
	PolicyCheapest PolicyKind = "cheapest"
	// PolicyKeepIfProfitable rides only when riding does not lower the
	// seeker's income as a driver and its plan is unchanged since the last round.
	PolicyKeepIfProfitable PolicyKind = "keep_if_profitable"
)

type Policy struct {
	Kind PolicyKind
	// Income is the seeker's current income as a driver.
	Income float64
	// Changed is set when the seeker's plan moved since its previous round.
	Changed bool
}

func Cheapest() Policy { return Policy{Kind: PolicyCheapest} }

func KeepIfProfitable(income float64, changed bool) Policy {
	return Policy{Kind: PolicyKeepIfProfitable, Income: income, Changed: changed}
}

type Decision string

const (
	DecisionCommit Decision = "commit"
	// DecisionKeep keeps the current plan; the round was fruitless.
	DecisionKeep Decision = "keep"
	// DecisionWait defers because the plan changed; the seeker remembers the
	// plan and looks again next round.
	DecisionWait Decision = "wait"
)

// Decide applies the policy to the cheapest offer. Riding at price yields an
// income of -price, which is compared with the income of driving.
func (p Policy) Decide(price float64) Decision {
	if p.Kind != PolicyKeepIfProfitable {
		return DecisionCommit
	}
	if p.Changed {
		return DecisionWait
	}
	if p.Income > -price {
		return DecisionKeep
	}
	return DecisionCommit
}

// Blacklists reports whether an unchosen offer at price is not worth asking
// again: driving already pays better than riding at that price.
func (p Policy) Blacklists(price float64) bool {
	return p.Kind == PolicyKeepIfProfitable && p.Income > -price
}

// Blacklist holds counterparties a driver skips when broadcasting. It is
// owned by one actor and not safe for concurrent use.
type Blacklist struct {
	set map[types.ID]struct{}
}

func NewBlacklist() *Blacklist {
	return &Blacklist{set: make(map[types.ID]struct{})}
}

func (b *Blacklist) Add(id types.ID) { b.set[id] = struct{}{} }

func (b *Blacklist) Remove(id types.ID) { delete(b.set, id) }

func (b *Blacklist) Contains(id types.ID) bool {
	_, ok := b.set[id]
	return ok
}

func (b *Blacklist) Len() int { return len(b.set) }

func (b *Blacklist) IDs() []types.ID {
	out := make([]types.ID, 0, len(b.set))
	for id := range b.set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Eligible filters pool down to the ids a seeker may contact.
func Eligible(pool []types.ID, self types.ID, bl *Blacklist) []types.ID {
	out := make([]types.ID, 0, len(pool))
	for _, id := range pool {
		if id == self || (bl != nil && bl.Contains(id)) {
			continue
		}
		out = append(out, id)
	}
	return out
}
