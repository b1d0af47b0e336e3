package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relator-ai/internal/domain"
)

func newTestChat(provider *stubProvider, store domain.ChatStore) *ChatManager {
	chat := NewChatManager("chat-1", testOrchestrator(provider), store, DefaultMaxHistory, testLogger())
	chat.storagePolicy.InitialDelay = time.Millisecond
	return chat
}

func TestChatManager_RejectsEmptyMessage(t *testing.T) {
	provider := replying("resposta")
	chat := newTestChat(provider, newMemStore())

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := chat.Send(context.Background(), msg, nil)
		require.ErrorIs(t, err, domain.ErrEmptyMessage)
		assert.Equal(t, "Mensagem vazia", domain.UserMessageFor(err))
	}
	// The provider was never contacted.
	assert.Equal(t, 0, provider.callCount())
	assert.Empty(t, chat.History())
}

func TestChatManager_RejectsWithoutProvider(t *testing.T) {
	chat := NewChatManager("chat-1", testOrchestrator(nil), newMemStore(), DefaultMaxHistory, testLogger())

	_, err := chat.Send(context.Background(), "olá", nil)
	assert.ErrorIs(t, err, domain.ErrAIUnavailable)
}

func TestChatManager_SuccessAppendsBothTurns(t *testing.T) {
	provider := replying("  resposta do modelo  \n")
	store := newMemStore()
	chat := newTestChat(provider, store)

	reply, err := chat.Send(context.Background(), "analise as horas extras", nil)
	require.NoError(t, err)
	assert.Equal(t, "resposta do modelo", reply)

	history := chat.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.Equal(t, "analise as horas extras", history[0].Content)
	assert.Equal(t, domain.RoleAssistant, history[1].Role)
	// Assistant content is trimmed.
	assert.Equal(t, "resposta do modelo", history[1].Content)

	// Every mutation persists.
	saved, err := store.GetChat(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestChatManager_FirstTurnContextBuilder(t *testing.T) {
	provider := replying("resposta")
	chat := newTestChat(provider, newMemStore())

	builderCalls := 0
	builder := func(ctx context.Context, userText string) (string, error) {
		builderCalls++
		return "CONTEXTO DOS AUTOS\n\n" + userText, nil
	}

	_, err := chat.Send(context.Background(), "primeira pergunta", builder)
	require.NoError(t, err)
	_, err = chat.Send(context.Background(), "segunda pergunta", builder)
	require.NoError(t, err)

	// Only the opening turn is expanded.
	assert.Equal(t, 1, builderCalls)

	history := chat.History()
	require.Len(t, history, 4)
	assert.Equal(t, "primeira pergunta", history[0].Content)
	assert.Equal(t, "CONTEXTO DOS AUTOS\n\nprimeira pergunta", history[0].ContentForAPI)
	assert.Empty(t, history[2].ContentForAPI)

	// The second call resends the expanded payload without rebuilding it.
	req := provider.lastRequest()
	require.NotEmpty(t, req.Messages)
	assert.Contains(t, req.Messages[0].Content, "CONTEXTO DOS AUTOS")
}

func TestChatManager_FailureAppendsSingleEntryWithError(t *testing.T) {
	provider := newStubProvider()
	provider.chatFn = func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		return nil, errors.New("connection refused")
	}
	chat := newTestChat(provider, newMemStore())

	_, err := chat.Send(context.Background(), "olá", nil)
	require.Error(t, err)

	history := chat.History()
	require.Len(t, history, 1)
	assert.Equal(t, domain.RoleUser, history[0].Role)
	assert.NotEmpty(t, history[0].Error)
	assert.False(t, chat.Generating())
}

func TestChatManager_HistoryCapKeepsOpeningEntry(t *testing.T) {
	provider := replying("resposta")
	chat := newTestChat(provider, newMemStore())

	builder := func(ctx context.Context, userText string) (string, error) {
		return "CONTEXTO COMPLETO: " + userText, nil
	}

	// Each send appends two entries; go well past the cap.
	for i := 0; i < DefaultMaxHistory+5; i++ {
		_, err := chat.Send(context.Background(), fmt.Sprintf("mensagem %d", i), builder)
		require.NoError(t, err)
	}

	history := chat.History()
	assert.Len(t, history, DefaultMaxHistory)
	// Entry 0 keeps its expanded context through every trim.
	assert.Equal(t, "CONTEXTO COMPLETO: mensagem 0", history[0].ContentForAPI)
	// The newest exchange survives.
	assert.Equal(t, fmt.Sprintf("mensagem %d", DefaultMaxHistory+4), history[len(history)-2].Content)
}

func TestChatManager_RejectsOverlappingSends(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var startedOnce sync.Once
	provider := newStubProvider()
	provider.chatFn = func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		startedOnce.Do(func() { close(started) })
		<-release
		return &domain.ChatResponse{Message: domain.AssistantMessage("ok")}, nil
	}
	chat := newTestChat(provider, newMemStore())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := chat.Send(context.Background(), "primeira", nil)
		assert.NoError(t, err)
	}()

	<-started
	_, err := chat.Send(context.Background(), "segunda", nil)
	assert.ErrorIs(t, err, domain.ErrGenerating)

	close(release)
	wg.Wait()

	// Flag cleared after the in-flight send finishes.
	assert.False(t, chat.Generating())
	_, err = chat.Send(context.Background(), "terceira", nil)
	assert.NoError(t, err)
}

func TestChatManager_BuilderFailureClearsFlagAndRecords(t *testing.T) {
	provider := replying("resposta")
	chat := newTestChat(provider, newMemStore())

	boom := errors.New("autos indisponíveis")
	_, err := chat.Send(context.Background(), "olá", func(ctx context.Context, s string) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	assert.False(t, chat.Generating())
	assert.Equal(t, 0, provider.callCount())
	history := chat.History()
	require.Len(t, history, 1)
	assert.NotEmpty(t, history[0].Error)
}

func TestChatManager_StoreFailuresAreSwallowed(t *testing.T) {
	provider := replying("resposta")
	store := newMemStore()
	store.fail = errors.New("disk full")
	chat := newTestChat(provider, store)

	// Load degrades to empty without propagating.
	chat.Open(context.Background())
	assert.Empty(t, chat.History())

	// Save failure does not fail the send.
	reply, err := chat.Send(context.Background(), "olá", nil)
	require.NoError(t, err)
	assert.Equal(t, "resposta", reply)
	assert.Len(t, chat.History(), 2)
}

func TestChatManager_OpenLoadsPersistedHistory(t *testing.T) {
	store := newMemStore()
	persisted := []domain.ChatEntry{
		{Role: domain.RoleUser, Content: "oi", Timestamp: time.Now()},
		{Role: domain.RoleAssistant, Content: "olá", Timestamp: time.Now()},
	}
	require.NoError(t, store.SaveChat(context.Background(), "chat-1", persisted))

	chat := newTestChat(replying("resposta"), store)
	chat.Open(context.Background())
	assert.Len(t, chat.History(), 2)
}

func TestChatManager_ClearDropsLocalAndStored(t *testing.T) {
	store := newMemStore()
	chat := newTestChat(replying("resposta"), store)

	_, err := chat.Send(context.Background(), "olá", nil)
	require.NoError(t, err)

	chat.Clear(context.Background())
	assert.Empty(t, chat.History())
	saved, _ := store.GetChat(context.Background(), "chat-1")
	assert.Empty(t, saved)
}

func TestChatManager_UpdateLast(t *testing.T) {
	chat := newTestChat(replying("rascunho"), newMemStore())

	_, err := chat.Send(context.Background(), "olá", nil)
	require.NoError(t, err)

	chat.UpdateLast(context.Background(), "rascunho editado")
	history := chat.History()
	assert.Equal(t, "rascunho editado", history[len(history)-1].Content)
}

func TestChatManager_FailedEntriesNotResent(t *testing.T) {
	provider := newStubProvider()
	fail := true
	provider.chatFn = func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return &domain.ChatResponse{Message: domain.AssistantMessage("ok")}, nil
	}
	chat := newTestChat(provider, newMemStore())

	_, err := chat.Send(context.Background(), "primeira", nil)
	require.Error(t, err)

	fail = false
	_, err = chat.Send(context.Background(), "segunda", nil)
	require.NoError(t, err)

	// The failed turn stays in history for display but is not resent.
	req := provider.lastRequest()
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "segunda", req.Messages[0].Content)
}

func TestChatManager_BuilderReappliedAfterFailedOpeningSend(t *testing.T) {
	provider := newStubProvider()
	fail := true
	provider.chatFn = func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return &domain.ChatResponse{Message: domain.AssistantMessage("ok")}, nil
	}
	chat := newTestChat(provider, newMemStore())

	builderCalls := 0
	builder := func(ctx context.Context, userText string) (string, error) {
		builderCalls++
		return "CONTEXTO DOS AUTOS\n\n" + userText, nil
	}

	_, err := chat.Send(context.Background(), "primeira pergunta", builder)
	require.Error(t, err)

	// The failed opening entry is skipped at send time. The conversation
	// is still fresh, so the next send expands again instead of dropping
	// the case material.
	fail = false
	_, err = chat.Send(context.Background(), "segunda pergunta", builder)
	require.NoError(t, err)
	assert.Equal(t, 2, builderCalls)

	req := provider.lastRequest()
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "CONTEXTO DOS AUTOS")

	// Once an exchange has completed, the retained expansion is resent
	// without rebuilding.
	_, err = chat.Send(context.Background(), "terceira pergunta", builder)
	require.NoError(t, err)
	assert.Equal(t, 2, builderCalls)
	req = provider.lastRequest()
	require.Len(t, req.Messages, 3)
	assert.Contains(t, req.Messages[0].Content, "CONTEXTO DOS AUTOS")
}

func TestNewConversationID_Unique(t *testing.T) {
	a := NewConversationID()
	b := NewConversationID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}
