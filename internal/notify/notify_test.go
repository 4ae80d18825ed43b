// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-capsule.
//
// go-capsule is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-capsule/internal/notify"
	"github.com/jeremyhahn/go-capsule/internal/notify/notifytest"
	"github.com/jeremyhahn/go-capsule/pkg/capsule"
	"github.com/jeremyhahn/go-capsule/pkg/logging"
)

func TestDispatch(t *testing.T) {
	recorder := &notifytest.Recorder{}
	events := []capsule.Event{
		{Kind: capsule.EventReleaseInitiated, CapsuleID: uuid.New(), Subject: "owner-1"},
		{Kind: capsule.EventReleaseNotification, CapsuleID: uuid.New(), Subject: "heir@example.org"},
	}

	require.NoError(t, notify.Dispatch(context.Background(), recorder, events))
	assert.Len(t, recorder.Events(), 2)
	assert.Len(t, recorder.OfKind(capsule.EventReleaseInitiated), 1)
}

func TestDispatchReturnsFirstError(t *testing.T) {
	recorder := &notifytest.Recorder{Err: errors.New("relay down")}
	events := []capsule.Event{
		{Kind: capsule.EventOwnerReminder, Subject: "owner-1"},
		{Kind: capsule.EventOwnerReminder, Subject: "owner-2"},
	}

	err := notify.Dispatch(context.Background(), recorder, events)
	assert.EqualError(t, err, "relay down")
	assert.Empty(t, recorder.Events())
}

func TestLogNotifier(t *testing.T) {
	n := notify.NewLogNotifier(logging.NewLogger(false))
	err := n.Notify(context.Background(), capsule.Event{
		Kind:      capsule.EventOwnerHint,
		CapsuleID: uuid.New(),
		Subject:   "owner-1",
		Detail:    "2 recipients unconfirmed",
	})
	assert.NoError(t, err)
}
