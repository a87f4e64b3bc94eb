package guard

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueKey(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	id := node.Generate()

	assert.Equal(t, "invoice:issue:"+id.String(), issueKey(id))
}

func TestNewIssueGuard_NilClient(t *testing.T) {
	assert.Nil(t, NewIssueGuard(nil))
}

func TestLockIssue_NotConfigured(t *testing.T) {
	var g *IssueGuard

	_, _, err := g.LockIssue(context.Background(), snowflake.ID(42))
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestReleaseIssue_NoopWithoutLease(t *testing.T) {
	var g *IssueGuard

	assert.NoError(t, g.ReleaseIssue(context.Background(), snowflake.ID(42), "token"))
	assert.NoError(t, g.ReleaseIssue(context.Background(), snowflake.ID(42), ""))
}
