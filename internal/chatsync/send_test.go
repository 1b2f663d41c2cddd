package chatsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saravenpi/whopchat/internal/models"
)

func TestSendMessageReplacesOptimisticEntry(t *testing.T) {
	h := newHarness(t)
	h.store.UpsertChatToFront(directChat("c1", bob))
	h.store.UpsertChatToFront(directChat("c2", carol))
	h.open(t, directChat("c1", bob), serverMessage("m1", "c1", "u2", "hi"))

	release := make(chan struct{})
	h.api.sendFn = func(_ context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
		<-release
		return &models.SendMessageResponse{UserMessage: serverMessage("m2", req.ChatID, "u1", req.Content)}, nil
	}

	done := make(chan bool)
	go func() {
		done <- h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "c1", Content: "hello"}, false)
	}()

	require.Eventually(t, func() bool {
		return len(h.store.SingleChat().Messages) == 2
	}, time.Second, 5*time.Millisecond)

	pending := h.store.SingleChat().Messages[1]
	assert.Equal(t, "tmp-1", pending.ID)
	assert.Equal(t, StatusSending, pending.Status)
	assert.Equal(t, models.PendingSend{TempID: "tmp-1"}, pending.State)
	assert.Equal(t, "u1", pending.SenderID())
	assert.True(t, h.store.Flags().Sending)

	close(release)
	require.True(t, <-done)

	single := h.store.SingleChat()
	assert.Equal(t, []string{"m1", "m2"}, messageIDs(single))
	assert.Equal(t, "", single.Messages[1].Status)
	assert.Equal(t, models.Confirmed{ServerID: "m2"}, single.Messages[1].State)
	assert.False(t, h.store.Flags().Sending)

	chats := h.store.Chats()
	assert.Equal(t, []string{"c1", "c2"}, chatIDs(chats))
	assert.Equal(t, "m2", chats[0].LastMessage.ID)

	reqs := h.api.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "hello", reqs[0].Content)
	assert.Empty(t, reqs[0].AIMessageID)
}

func TestSendMessageKeepsPositionWhenPushArrivesMeanwhile(t *testing.T) {
	h := newHarness(t)
	h.store.UpsertChatToFront(directChat("c1", bob))
	h.open(t, directChat("c1", bob))

	release := make(chan struct{})
	h.api.sendFn = func(_ context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
		<-release
		return &models.SendMessageResponse{UserMessage: serverMessage("mine", req.ChatID, "u1", req.Content)}, nil
	}

	done := make(chan bool)
	go func() {
		done <- h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "c1", Content: "first"}, false)
	}()
	require.Eventually(t, func() bool {
		return len(h.store.SingleChat().Messages) == 1
	}, time.Second, 5*time.Millisecond)

	h.store.HandleIncoming(serverMessage("theirs", "c1", "u2", "second"))
	close(release)
	require.True(t, <-done)

	assert.Equal(t, []string{"mine", "theirs"}, messageIDs(h.store.SingleChat()))
}

func TestSendMessageToAIChat(t *testing.T) {
	h := newHarness(t)
	chat := aiChat("ai-chat")
	h.store.UpsertChatToFront(chat)
	h.open(t, chat)

	release := make(chan struct{})
	h.api.sendFn = func(_ context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
		<-release
		reply := serverMessage("reply", req.ChatID, "ai1", "I can help")
		return &models.SendMessageResponse{
			UserMessage: serverMessage("question", req.ChatID, "u1", req.Content),
			AIResponse:  &reply,
		}, nil
	}

	done := make(chan bool)
	go func() {
		done <- h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "ai-chat", Content: "help?"}, true)
	}()

	require.Eventually(t, func() bool {
		return len(h.store.SingleChat().Messages) == 2
	}, time.Second, 5*time.Millisecond)

	single := h.store.SingleChat()
	user, placeholder := single.Messages[0], single.Messages[1]
	assert.Equal(t, "tmp-1", user.ID)
	assert.Empty(t, user.Status)
	assert.Equal(t, "tmp-2", placeholder.ID)
	assert.True(t, placeholder.Streaming)
	assert.Empty(t, placeholder.Content)
	assert.Equal(t, "ai1", placeholder.SenderID())

	// Chunks streamed before the response land on the placeholder.
	h.store.HandleChunk(models.StreamChunk{ChatID: "ai-chat", MessageID: "tmp-2", Delta: "I can"})
	assert.Equal(t, "I can", h.store.SingleChat().Messages[1].Content)

	close(release)
	require.True(t, <-done)

	single = h.store.SingleChat()
	assert.Equal(t, []string{"question", "reply"}, messageIDs(single))
	assert.False(t, single.Messages[1].Streaming)
	assert.Equal(t, "I can help", single.Messages[1].Content)
	assert.Equal(t, "reply", h.store.Chats()[0].LastMessage.ID)

	reqs := h.api.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "tmp-2", reqs[0].AIMessageID)
}

func TestSendMessageAIChatWithoutAIFlag(t *testing.T) {
	h := newHarness(t)
	h.open(t, aiChat("ai-chat"))

	require.True(t, h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "ai-chat", Content: "hi"}, false))

	assert.Equal(t, []string{"srv-ai-chat"}, messageIDs(h.store.SingleChat()))
	assert.Empty(t, h.api.requests()[0].AIMessageID)
}

func TestSendMessageAIPlaceholderWithoutReply(t *testing.T) {
	h := newHarness(t)
	h.open(t, aiChat("ai-chat"))

	require.True(t, h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "ai-chat", Content: "hi"}, true))

	single := h.store.SingleChat()
	require.Len(t, single.Messages, 2)
	assert.Equal(t, "srv-ai-chat", single.Messages[0].ID)
	assert.True(t, single.Messages[1].IsFailed())
	assert.False(t, single.Messages[1].Streaming)
}

func TestSendMessageFailure(t *testing.T) {
	h := newHarness(t)
	h.open(t, directChat("c1", bob))
	h.api.sendFn = func(context.Context, models.SendMessageRequest) (*models.SendMessageResponse, error) {
		return nil, apiError{message: "Chat not found", kind: ErrValidation}
	}

	require.True(t, h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "c1", Content: "lost"}, false))

	single := h.store.SingleChat()
	require.Len(t, single.Messages, 1)
	failed := single.Messages[0]
	assert.Equal(t, "tmp-1", failed.ID)
	assert.Equal(t, "lost", failed.Content)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.True(t, failed.IsFailed())
	assert.Equal(t, []string{"Chat not found"}, h.notifier.errorMessages())
	assert.False(t, h.store.Flags().Sending)
}

func TestSendMessageCopiesReplyTarget(t *testing.T) {
	h := newHarness(t)
	parent := serverMessage("m1", "c1", "u2", "question")
	h.open(t, directChat("c1", bob), parent)
	h.api.sendFn = func(context.Context, models.SendMessageRequest) (*models.SendMessageResponse, error) {
		return nil, apiError{message: "offline", kind: ErrNetwork}
	}

	reply := parent
	require.True(t, h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "c1", Content: "answer", ReplyTo: &reply}, false))
	reply.Content = "edited"
	reply.Sender.Name = "edited"

	single := h.store.SingleChat()
	require.Len(t, single.Messages, 2)
	quoted := single.Messages[1].ReplyTo
	require.NotNil(t, quoted)
	assert.Equal(t, "question", quoted.Content)
	assert.Empty(t, quoted.Sender.Name)
}

func TestSendMessageNoOps(t *testing.T) {
	t.Run("no open chat", func(t *testing.T) {
		h := newHarness(t)
		h.store.UpsertChatToFront(directChat("c1", bob))

		assert.False(t, h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "c1", Content: "x"}, false))
		assert.Empty(t, h.api.requests())
	})

	t.Run("empty chat id", func(t *testing.T) {
		h := newHarness(t)
		h.open(t, directChat("c1", bob))

		assert.False(t, h.store.SendMessage(context.Background(), models.SendMessagePayload{Content: "x"}, false))
		assert.Empty(t, h.api.requests())
	})

	t.Run("no identity", func(t *testing.T) {
		api := newFakeAPI()
		api.singles["c1"] = models.SingleChat{Chat: directChat("c1", bob)}
		store := New(Deps{API: api, Identity: fakeIdentity{}})
		require.True(t, store.FetchSingleChat(context.Background(), "c1"))

		assert.False(t, store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "c1", Content: "x"}, false))
		assert.Empty(t, api.requests())
		assert.Empty(t, store.SingleChat().Messages)
	})
}

func TestSendMessageToChatThatIsNotOpen(t *testing.T) {
	h := newHarness(t)
	h.store.UpsertChatToFront(directChat("c2", carol))
	h.store.UpsertChatToFront(directChat("c1", bob))
	h.open(t, directChat("c1", bob))

	require.True(t, h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "c2", Content: "x"}, false))

	assert.Empty(t, h.store.SingleChat().Messages)
	assert.Equal(t, []string{"c2", "c1"}, chatIDs(h.store.Chats()))
}

func TestConcurrentSendsKeepOrder(t *testing.T) {
	h := newHarness(t)
	h.open(t, directChat("c1", bob))

	h.api.sendFn = func(_ context.Context, req models.SendMessageRequest) (*models.SendMessageResponse, error) {
		id := "srv-" + req.Content
		return &models.SendMessageResponse{UserMessage: serverMessage(id, req.ChatID, "u1", req.Content)}, nil
	}

	var wg sync.WaitGroup
	for _, content := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			h.store.SendMessage(context.Background(), models.SendMessagePayload{ChatID: "c1", Content: content}, false)
		}(content)
	}
	wg.Wait()

	single := h.store.SingleChat()
	require.Len(t, single.Messages, 4)
	for _, m := range single.Messages {
		assert.Equal(t, "srv-"+m.Content, m.ID)
		assert.False(t, m.IsPending())
	}
	assert.False(t, h.store.Flags().Sending)
}
