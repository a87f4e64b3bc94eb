// Package guard serializes issuance per order. The invoicing core
// serializes at the sequence-prefix level only; making sure Issue does not
// run twice concurrently for one order is the caller's job, done here with
// a short Redis SetNX lease keyed by order id.
package guard

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// issueLeaseTTL caps how long a crashed issuance can keep an order locked.
// Gateway calls time out well before this.
const issueLeaseTTL = 2 * time.Minute

const issueKeyPrefix = "invoice:issue:"

const leaseReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var ErrNotConfigured = errors.New("issue guard not configured")

type IssueGuard struct {
	client *redis.Client
	script *redis.Script
}

func NewIssueGuard(client *redis.Client) *IssueGuard {
	if client == nil {
		return nil
	}
	return &IssueGuard{
		client: client,
		script: redis.NewScript(leaseReleaseScript),
	}
}

func issueKey(orderID snowflake.ID) string {
	return issueKeyPrefix + orderID.String()
}

// LockIssue takes the per-order issuance lease. The returned token must be
// handed back to ReleaseIssue; only the holder can release early, everyone
// else waits out the TTL.
func (g *IssueGuard) LockIssue(ctx context.Context, orderID snowflake.ID) (string, bool, error) {
	if g == nil || g.client == nil {
		return "", false, ErrNotConfigured
	}

	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, issueKey(orderID), token, issueLeaseTTL).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// ReleaseIssue gives the lease back if token still owns it. Releasing an
// expired or foreign lease is a no-op.
func (g *IssueGuard) ReleaseIssue(ctx context.Context, orderID snowflake.ID, token string) error {
	if g == nil || g.client == nil || token == "" {
		return nil
	}
	return g.script.Run(ctx, g.client, []string{issueKey(orderID)}, token).Err()
}
