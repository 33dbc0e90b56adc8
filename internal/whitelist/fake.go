package whitelist

import (
	"context"
	"fmt"
	"sync"
)

// FakeGrant is one extension held by the in-memory fake.
type FakeGrant struct {
	SteamID   string
	Minutes   int64
	SourceTag string
	Retracted bool
}

// Fake is an in-memory Client used in tests and in local development when
// no whitelist service is configured.
type Fake struct {
	mu      sync.Mutex
	next    int
	grants  map[string]*FakeGrant
	failOps map[string]bool
}

// NewFake creates an empty in-memory whitelist client.
func NewFake() *Fake {
	return &Fake{
		grants:  make(map[string]*FakeGrant),
		failOps: make(map[string]bool),
	}
}

// FailGrants makes subsequent Grant calls fail when on is true.
func (f *Fake) FailGrants(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps["grant"] = on
}

// FailRetracts makes subsequent Retract calls fail when on is true.
func (f *Fake) FailRetracts(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps["retract"] = on
}

// Grant records an extension and returns a synthetic record id.
func (f *Fake) Grant(ctx context.Context, steamID string, minutes int64, sourceTag string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps["grant"] {
		return "", fmt.Errorf("whitelist service unavailable")
	}
	f.next++
	id := fmt.Sprintf("grant-%d", f.next)
	f.grants[id] = &FakeGrant{SteamID: steamID, Minutes: minutes, SourceTag: sourceTag}
	return id, nil
}

// Retract marks an extension as retracted.
func (f *Fake) Retract(ctx context.Context, grantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps["retract"] {
		return fmt.Errorf("whitelist service unavailable")
	}
	g, ok := f.grants[grantID]
	if !ok {
		return fmt.Errorf("unknown grant id %s", grantID)
	}
	g.Retracted = true
	return nil
}

// Grants returns a snapshot of all grants issued so far.
func (f *Fake) Grants() map[string]FakeGrant {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]FakeGrant, len(f.grants))
	for id, g := range f.grants {
		out[id] = *g
	}
	return out
}

// ActiveMinutes sums the non-retracted minutes held by a steam id.
func (f *Fake) ActiveMinutes(steamID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, g := range f.grants {
		if g.SteamID == steamID && !g.Retracted {
			total += g.Minutes
		}
	}
	return total
}
