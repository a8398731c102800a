package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	calls []string
	err   error
}

func (r *recordingDispatcher) Notify(_ context.Context, recipientID string, kind Kind, _, _ string, _ map[string]string) error {
	r.calls = append(r.calls, recipientID+"/"+string(kind))
	return r.err
}

func TestNewNotification(t *testing.T) {
	data := map[string]string{DataBookingID: "b-1"}

	n := NewNotification("user-1", KindBookingAccepted, "Request accepted", "Your request was accepted", data)

	require.NotNil(t, n)
	assert.NotEqual(t, uuid.Nil, n.NotificationID)
	assert.Equal(t, "user-1", n.RecipientID)
	assert.Equal(t, KindBookingAccepted, n.Kind)
	assert.Equal(t, "Request accepted", n.Title)
	assert.Equal(t, data, n.Data)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestNotification_Validate(t *testing.T) {
	assert.NoError(t, NewNotification("user-1", KindBookingAccepted, "t", "b", nil).Validate())
	assert.ErrorIs(t, NewNotification("  ", KindBookingAccepted, "t", "b", nil).Validate(), ErrNoRecipient)
}

func TestNotification_DedupeKey(t *testing.T) {
	data := map[string]string{DataBookingID: "b-1", DataVersion: "v1"}
	a := NewNotification("user-1", KindBookingCompleted, "t", "b", data)
	b := NewNotification("user-1", KindBookingCompleted, "other title", "other body", data)
	c := NewNotification("user-2", KindBookingCompleted, "t", "b", data)

	assert.Equal(t, a.DedupeKey(), b.DedupeKey())
	assert.NotEqual(t, a.DedupeKey(), c.DedupeKey())
	assert.Equal(t, "BOOKING_COMPLETED:user-1:b-1:v1", a.DedupeKey())
}

func TestNotification_JSON(t *testing.T) {
	n := NewNotification("user-1", KindExtensionRequested, "t", "b", map[string]string{"k": "v"})

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(n.JSON(), &decoded))
	assert.Equal(t, "EXTENSION_REQUESTED", decoded["kind"])
	assert.Equal(t, "user-1", decoded["recipientId"])
}

func TestMulti_Notify(t *testing.T) {
	t.Run("fans out to all", func(t *testing.T) {
		a, b := &recordingDispatcher{}, &recordingDispatcher{}
		err := Multi{a, nil, b}.Notify(context.Background(), "u", KindBookingRejected, "t", "b", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"u/BOOKING_REJECTED"}, a.calls)
		assert.Equal(t, []string{"u/BOOKING_REJECTED"}, b.calls)
	})

	t.Run("joins errors but keeps delivering", func(t *testing.T) {
		failing := &recordingDispatcher{err: errors.New("down")}
		ok := &recordingDispatcher{}
		err := Multi{failing, ok}.Notify(context.Background(), "u", KindBookingRejected, "t", "b", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "down")
		assert.Len(t, ok.calls, 1)
	})
}

func TestSSEClient(t *testing.T) {
	userID := "user-1"
	c := NewSSEClient("client-1", &userID)
	assert.Equal(t, "client-1", c.ClientID)
	assert.Equal(t, 100, cap(c.MessageChan))

	msg := NewSSEMessage("BOOKING_ACCEPTED", json.RawMessage(`{}`))
	c.MessageChan <- msg
	c.Close()

	got, ok := <-c.MessageChan
	require.True(t, ok)
	assert.Equal(t, msg.ID, got.ID)
	_, ok = <-c.MessageChan
	assert.False(t, ok)
}
