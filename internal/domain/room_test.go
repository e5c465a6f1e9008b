package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRoomID(t *testing.T) {
	seen := make(map[RoomID]bool)
	for i := 0; i < 100; i++ {
		id := NewRoomID()
		require.Len(t, string(id), 6)
		for _, c := range string(id) {
			require.True(t, strings.ContainsRune(roomIDCharset, c), string(id))
		}
		seen[id] = true
	}
	require.Greater(t, len(seen), 1)
}

func TestNewRoomInitialDocument(t *testing.T) {
	r := NewRoom("ABC123", "alice")
	require.Equal(t, Identity("alice"), r.Host)
	require.Equal(t, "alice's Room", r.Name)
	require.Equal(t, map[Identity]bool{"alice": true}, r.Participants)
	require.False(t, r.HasVideo())
	require.NotNil(t, r.Messages)
}

func TestRoomCloneDoesNotAlias(t *testing.T) {
	r := NewRoom("ABC123", "alice")
	r.Messages = append(r.Messages, NewSystemMessage("hi"))

	c := r.Clone()
	c.Participants["bob"] = true
	c.Messages[0].Text = "changed"

	require.NotContains(t, r.Participants, Identity("bob"))
	require.Equal(t, "hi", r.Messages[0].Text)

	var nilRoom *Room
	require.Nil(t, nilRoom.Clone())
}

func TestNewIdentity(t *testing.T) {
	_, err := NewIdentity("")
	require.ErrorIs(t, err, ErrIdentityEmpty)

	_, err = NewIdentity(strings.Repeat("x", MaxIdentityLen+1))
	require.ErrorIs(t, err, ErrIdentityTooLong)

	id, err := NewIdentity("alice")
	require.NoError(t, err)
	require.Equal(t, Identity("alice"), id)
}
