package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/testutil"
)

func TestNotifications_InboxPerRecipient(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	l := testutil.Identity("L")
	f := testutil.Identity("F")

	n1 := ir.Notification{ID: "01A", Subject: "first", From: l, To: f, ProjectID: "p1", CreatedAt: testutil.Epoch}
	n2 := ir.Notification{ID: "01B", Subject: "second", From: l, To: f, ProjectID: "p1", CreatedAt: testutil.Epoch.Add(time.Second)}
	other := ir.Notification{ID: "01C", Subject: "elsewhere", From: f, To: l, CreatedAt: testutil.Epoch}

	require.NoError(t, s.WriteNotification(ctx, n2))
	require.NoError(t, s.WriteNotification(ctx, n1))
	require.NoError(t, s.WriteNotification(ctx, other))

	inbox, err := s.ReadNotifications(ctx, f)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, n1, inbox[0])
	assert.Equal(t, n2, inbox[1])
}

func TestNotifications_DuplicateIDIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	n := ir.Notification{ID: "01A", Subject: "once", From: testutil.Identity("L"), To: testutil.Identity("F"), CreatedAt: testutil.Epoch}
	require.NoError(t, s.WriteNotification(ctx, n))
	require.NoError(t, s.WriteNotification(ctx, n))

	inbox, err := s.ReadNotifications(ctx, n.To)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestNotifications_EmptyInbox(t *testing.T) {
	s := createTestStore(t)
	inbox, err := s.ReadNotifications(context.Background(), testutil.Identity("F"))
	require.NoError(t, err)
	assert.NotNil(t, inbox)
	assert.Empty(t, inbox)
}
