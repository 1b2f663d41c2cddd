package chatsync

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saravenpi/whopchat/internal/models"
)

func TestUpsertChatToFrontNeverDuplicates(t *testing.T) {
	h := newHarness(t)
	ids := []string{"a", "b", "c", "d", "e"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		id := ids[rng.Intn(len(ids))]
		h.store.UpsertChatToFront(models.Chat{ID: id, GroupName: id})

		chats := h.store.Chats()
		require.Equal(t, id, chats[0].ID)

		seen := map[string]bool{}
		for _, c := range chats {
			require.False(t, seen[c.ID], "duplicate chat %s", c.ID)
			seen[c.ID] = true
		}
	}
}

func TestUpsertChatToFrontReplacesStoredCopy(t *testing.T) {
	h := newHarness(t)
	h.store.UpsertChatToFront(models.Chat{ID: "a", GroupName: "old"})
	h.store.UpsertChatToFront(models.Chat{ID: "b"})

	h.store.UpsertChatToFront(models.Chat{ID: "a", GroupName: "new"})

	chats := h.store.Chats()
	assert.Equal(t, []string{"a", "b"}, chatIDs(chats))
	assert.Equal(t, "new", chats[0].GroupName)
}

func TestUpdateLastMessageMovesChatToFront(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"C", "B", "A"} {
		h.store.UpsertChatToFront(models.Chat{ID: id})
	}
	require.Equal(t, []string{"A", "B", "C"}, chatIDs(h.store.Chats()))

	msg := serverMessage("m1", "B", "u2", "hello")
	require.True(t, h.store.UpdateLastMessage("B", msg))

	chats := h.store.Chats()
	assert.Equal(t, []string{"B", "A", "C"}, chatIDs(chats))
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "m1", chats[0].LastMessage.ID)
}

func TestUpdateLastMessageUnknownChat(t *testing.T) {
	h := newHarness(t)
	h.store.UpsertChatToFront(models.Chat{ID: "A"})

	assert.False(t, h.store.UpdateLastMessage("Z", serverMessage("m1", "Z", "u2", "hi")))
	assert.Equal(t, []string{"A"}, chatIDs(h.store.Chats()))
}

func TestFetchChats(t *testing.T) {
	h := newHarness(t)
	h.api.chats = []models.Chat{{ID: "x"}, {ID: "y"}, {ID: "x"}}

	h.store.FetchChats(context.Background())

	assert.Equal(t, []string{"x", "y"}, chatIDs(h.store.Chats()))
	assert.False(t, h.store.Flags().ChatsLoading)
	assert.Empty(t, h.notifier.errorMessages())
}

func TestChatsLoadingCoversOverlappingFetches(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.api.chatsGate = gate

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			h.store.FetchChats(context.Background())
			done <- struct{}{}
		}()
	}
	require.Eventually(t, func() bool { return h.api.listChatsCalls() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, h.store.Flags().ChatsLoading)

	gate <- struct{}{}
	<-done
	assert.True(t, h.store.Flags().ChatsLoading, "one fetch is still running")

	gate <- struct{}{}
	<-done
	assert.False(t, h.store.Flags().ChatsLoading)
}

func TestFetchChatsFailureKeepsList(t *testing.T) {
	h := newHarness(t)
	h.store.UpsertChatToFront(models.Chat{ID: "keep"})
	h.api.chatsErr = apiError{message: "server down", kind: ErrNetwork}

	h.store.FetchChats(context.Background())

	assert.Equal(t, []string{"keep"}, chatIDs(h.store.Chats()))
	assert.False(t, h.store.Flags().ChatsLoading)
	assert.Equal(t, []string{"server down"}, h.notifier.errorMessages())
}

func TestFilterChats(t *testing.T) {
	chats := []models.Chat{
		{ID: "1", Participants: []models.User{self, bob}},
		{ID: "2", IsGroup: true, GroupName: "Weekend Plans", Participants: []models.User{self, bob, carol}},
		{ID: "3", Participants: []models.User{self, carol}},
	}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"participant name", "bob", []string{"1", "2"}},
		{"case insensitive group", "WEEKEND", []string{"2"}},
		{"substring", "aro", []string{"2", "3"}},
		{"self is ignored", "alice", nil},
		{"empty query", "  ", []string{"1", "2", "3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterChats(chats, tt.query, self.ID)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, chatIDs(got))
		})
	}

	assert.Equal(t, []string{"1", "2", "3"}, chatIDs(chats), "input must not be reordered")
}

func TestSearchChatsUsesCurrentUser(t *testing.T) {
	h := newHarness(t)
	h.store.UpsertChatToFront(directChat("1", bob))

	assert.Empty(t, h.store.SearchChats("alice"))
	assert.Len(t, h.store.SearchChats("bob"), 1)
}
