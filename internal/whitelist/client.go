// Package whitelist talks to the community whitelist duration service.
// The engine only ever deals in minute deltas and grant record ids; expiry
// dates are the collaborator's business.
package whitelist

import "context"

// Client is the narrow contract the seeding engine consumes. Grant returns
// a record id used later for exact retraction, so a revoke never recomputes
// minutes against a config that may have changed since the grant.
type Client interface {
	// Grant extends a player's whitelist by the given minutes and returns
	// the extension record id.
	Grant(ctx context.Context, steamID string, minutes int64, sourceTag string) (string, error)

	// Retract removes a previously issued extension by record id.
	Retract(ctx context.Context, grantID string) error
}
