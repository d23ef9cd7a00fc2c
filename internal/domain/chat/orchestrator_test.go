package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mkersic/relay/internal/domain/provider"
	"github.com/mkersic/relay/internal/infra/llm"
)

type genCall struct {
	providerID string
	creds      provider.CredentialMap
	turns      []Turn
}

// fakeGen records calls and optionally blocks until released, to exercise
// the in-flight guard.
type fakeGen struct {
	mu      sync.Mutex
	calls   []genCall
	content string
	err     error
	started chan struct{}
	release chan struct{}
}

func (g *fakeGen) Generate(_ context.Context, providerID string, creds provider.CredentialMap, turns []Turn) (*llm.ChatResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, genCall{providerID: providerID, creds: creds, turns: turns})
	g.mu.Unlock()
	if g.started != nil {
		close(g.started)
		g.started = nil
	}
	if g.release != nil {
		<-g.release
	}
	if g.err != nil {
		return nil, g.err
	}
	return &llm.ChatResponse{Content: g.content, StopReason: "stop"}, nil
}

func (g *fakeGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func TestSendMessageAppendsUserAndAssistantTurns(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{content: "hello there"}
	o := NewOrchestrator(gen)

	turn, err := o.SendMessage(context.Background(), "hi", "claude", provider.CredentialMap{"ANTHROPIC_API_KEY": "sk-test"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if turn.Role != "assistant" || turn.Content != "hello there" {
		t.Fatalf("unexpected assistant turn %+v", turn)
	}
	if turn.Provider != "claude" {
		t.Fatalf("assistant turn provider = %q, want claude", turn.Provider)
	}

	turns := o.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "hi" {
		t.Fatalf("unexpected user turn %+v", turns[0])
	}
	if turns[0].Provider != "" {
		t.Fatalf("user turn should not be tagged with a provider, got %q", turns[0].Provider)
	}
	if turns[0].ID == turns[1].ID {
		t.Fatal("turn ids must be unique")
	}
}

func TestSendMessageCarriesFullHistoryIncludingOptimisticTurn(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{content: "two"}
	o := NewOrchestrator(gen)
	if err := o.Seed([]Turn{
		{ID: "a", Role: "user", Content: "one?"},
		{ID: "b", Role: "assistant", Content: "one"},
	}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if _, err := o.SendMessage(context.Background(), "two?", "gpt-4", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	sent := gen.calls[0].turns
	if len(sent) != 3 {
		t.Fatalf("generator saw %d turns, want 3", len(sent))
	}
	if sent[2].Role != "user" || sent[2].Content != "two?" {
		t.Fatalf("optimistic turn missing from request, got %+v", sent[2])
	}
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{content: "x"}
	o := NewOrchestrator(gen)

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := o.SendMessage(context.Background(), content, "gpt-4", nil); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("content %q: err = %v, want ErrEmptyMessage", content, err)
		}
	}
	if gen.callCount() != 0 {
		t.Fatal("generator must not be called for rejected sends")
	}
	if len(o.Turns()) != 0 {
		t.Fatal("rejected send must not append turns")
	}
}

func TestSendMessageRollsBackOptimisticTurnOnFailure(t *testing.T) {
	t.Parallel()

	genErr := errors.New("upstream exploded")
	gen := &fakeGen{err: genErr}
	o := NewOrchestrator(gen)
	seed := []Turn{{ID: "a", Role: "user", Content: "hi"}, {ID: "b", Role: "assistant", Content: "hello"}}
	if err := o.Seed(seed); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	if _, err := o.SendMessage(context.Background(), "again", "gpt-4", nil); !errors.Is(err, genErr) {
		t.Fatalf("err = %v, want %v", err, genErr)
	}

	turns := o.Turns()
	if len(turns) != len(seed) {
		t.Fatalf("got %d turns after rollback, want %d", len(turns), len(seed))
	}
	for i := range seed {
		if turns[i].ID != seed[i].ID {
			t.Fatalf("turn %d id = %q, want %q", i, turns[i].ID, seed[i].ID)
		}
	}
	if o.Sending() {
		t.Fatal("orchestrator must return to idle after failure")
	}
}

func TestSendMessageSingleFlight(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGen{content: "slow", started: started, release: release}
	o := NewOrchestrator(gen)

	done := make(chan error, 1)
	go func() {
		_, err := o.SendMessage(context.Background(), "first", "gpt-4", nil)
		done <- err
	}()
	<-started

	if _, err := o.SendMessage(context.Background(), "second", "gpt-4", nil); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("concurrent send err = %v, want ErrRequestInFlight", err)
	}
	if _, err := o.RegenerateLast(context.Background(), "", nil); !errors.Is(err, ErrRequestInFlight) {
		t.Fatalf("concurrent regenerate err = %v, want ErrRequestInFlight", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1", gen.callCount())
	}
	if got := len(o.Turns()); got != 2 {
		t.Fatalf("got %d turns, want 2 (rejected send must not append)", got)
	}
}

func TestRegenerateLastReplacesAssistantTurn(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{content: "first answer"}
	o := NewOrchestrator(gen)
	if _, err := o.SendMessage(context.Background(), "question", "llama", provider.CredentialMap{"GROQ_API_KEY": "gsk-1"}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	gen.content = "second answer"
	turn, err := o.RegenerateLast(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("RegenerateLast: %v", err)
	}
	if turn.Content != "second answer" {
		t.Fatalf("regenerated content = %q", turn.Content)
	}

	turns := o.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[1].Content != "second answer" {
		t.Fatalf("last turn = %q, want replacement", turns[1].Content)
	}

	// Replay must reuse the last send's provider and credentials, and must
	// not include the removed assistant turn.
	replay := gen.calls[1]
	if replay.providerID != "llama" {
		t.Fatalf("replay provider = %q, want llama", replay.providerID)
	}
	if replay.creds["GROQ_API_KEY"] != "gsk-1" {
		t.Fatal("replay must reuse remembered credentials")
	}
	if len(replay.turns) != 1 || replay.turns[0].Role != "user" {
		t.Fatalf("replay history = %+v, want just the user turn", replay.turns)
	}
}

func TestRegenerateLastRestoresTurnOnFailure(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{content: "the original"}
	o := NewOrchestrator(gen)
	if _, err := o.SendMessage(context.Background(), "q", "gpt-4", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	before := o.Turns()

	gen.err = errors.New("rate limited")
	if _, err := o.RegenerateLast(context.Background(), "", nil); err == nil {
		t.Fatal("expected regeneration error")
	}

	after := o.Turns()
	if len(after) != len(before) {
		t.Fatalf("got %d turns, want %d", len(after), len(before))
	}
	if after[1].ID != before[1].ID || after[1].Content != "the original" {
		t.Fatalf("failed regeneration must restore the previous response, got %+v", after[1])
	}
}

func TestRegenerateLastOnSeededSessionUsesSuppliedParameters(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{content: "fresh answer"}
	o := NewOrchestrator(gen)

	// A seeded orchestrator has no remembered send parameters; the caller
	// must supply provider and credentials.
	if err := o.Seed([]Turn{
		{ID: "u1", Role: "user", Content: "question"},
		{ID: "a1", Role: "assistant", Content: "old answer", Provider: "gpt-4"},
	}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	creds := provider.CredentialMap{"OPENAI_API_KEY": "sk-1"}
	turn, err := o.RegenerateLast(context.Background(), "gpt-4", creds)
	if err != nil {
		t.Fatalf("RegenerateLast: %v", err)
	}
	if turn.Content != "fresh answer" || turn.Provider != "gpt-4" {
		t.Fatalf("regenerated turn = %+v, want fresh answer from gpt-4", turn)
	}

	call := gen.calls[0]
	if call.providerID != "gpt-4" {
		t.Fatalf("provider = %q, want gpt-4", call.providerID)
	}
	if call.creds["OPENAI_API_KEY"] != "sk-1" {
		t.Fatal("supplied credentials must reach the generator")
	}
	if len(call.turns) != 1 || call.turns[0].ID != "u1" {
		t.Fatalf("history = %+v, want just the seeded user turn", call.turns)
	}

	// The supplied pair becomes the remembered one for later replays.
	gen.content = "again"
	if _, err := o.RegenerateLast(context.Background(), "", nil); err != nil {
		t.Fatalf("RegenerateLast fallback: %v", err)
	}
	replay := gen.calls[1]
	if replay.providerID != "gpt-4" || replay.creds["OPENAI_API_KEY"] != "sk-1" {
		t.Fatalf("fallback replay = %q/%v, want remembered pair", replay.providerID, replay.creds)
	}
}

func TestRegenerateLastRejectsShortHistory(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{content: "x"}
	o := NewOrchestrator(gen)

	if _, err := o.RegenerateLast(context.Background(), "", nil); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("empty history err = %v, want ErrNothingToRedo", err)
	}

	if err := o.Seed([]Turn{{ID: "a", Role: "user", Content: "hi"}}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if _, err := o.RegenerateLast(context.Background(), "", nil); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("single-turn err = %v, want ErrNothingToRedo", err)
	}
	if gen.callCount() != 0 {
		t.Fatal("generator must not be called for rejected regenerations")
	}
}

func TestClearResetsTurnsAndRememberedRequest(t *testing.T) {
	t.Parallel()

	gen := &fakeGen{content: "x"}
	o := NewOrchestrator(gen)
	if _, err := o.SendMessage(context.Background(), "hi", "gpt-4", nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	o.Clear()
	if got := len(o.Turns()); got != 0 {
		t.Fatalf("got %d turns after Clear, want 0", got)
	}
	if _, err := o.RegenerateLast(context.Background(), "", nil); !errors.Is(err, ErrNothingToRedo) {
		t.Fatalf("regenerate after Clear err = %v, want ErrNothingToRedo", err)
	}
}

func TestClearDuringFlightDiscardsResult(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGen{content: "late", started: started, release: release}
	o := NewOrchestrator(gen)

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.SendMessage(context.Background(), "hi", "gpt-4", nil)
	}()
	<-started

	o.Clear()
	close(release)
	<-done

	if got := len(o.Turns()); got != 0 {
		t.Fatalf("got %d turns, want 0: a cleared session must drop late results", got)
	}
	if o.Sending() {
		t.Fatal("orchestrator must be idle after the flight resolves")
	}
}
