package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	settingsmodel "github.com/zhouzirui/persona-echo/backend/internal/model/settings"
)

type fakeChatModel struct {
	mu     sync.Mutex
	reply  string
	chunks []string
	err    error
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, c := range f.chunks {
		msgs = append(msgs, &schema.Message{Role: schema.Assistant, Content: c})
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type staticSettings struct {
	mu    sync.Mutex
	value settingsmodel.Settings
}

func (s *staticSettings) Current() settingsmodel.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *staticSettings) set(v settingsmodel.Settings) {
	s.mu.Lock()
	s.value = v
	s.mu.Unlock()
}

func newTestService(fake *fakeChatModel) (*Service, *staticSettings, *[]settingsmodel.Settings) {
	src := &staticSettings{value: settingsmodel.Settings{OllamaHost: "http://h1", LLMModel: "m1"}}
	var built []settingsmodel.Settings
	factory := func(_ context.Context, s settingsmodel.Settings) (model.BaseChatModel, error) {
		built = append(built, s)
		return fake, nil
	}
	return NewService(factory, src, nil), src, &built
}

func TestCompleteSendsSystemAndTurns(t *testing.T) {
	fake := &fakeChatModel{reply: "  sure thing  "}
	svc, _, _ := newTestService(fake)

	reply, err := svc.Complete(context.Background(), Prompt{
		System: "be Bob",
		Turns: []Turn{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "lunch?"},
		},
	})
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if reply != "sure thing" {
		t.Fatalf("reply = %q", reply)
	}

	input := fake.inputs[0]
	if len(input) != 4 {
		t.Fatalf("expected system + 3 turns, got %d", len(input))
	}
	if input[0].Role != schema.System || !strings.Contains(input[0].Content, "be Bob") {
		t.Fatalf("unexpected system message: %#v", input[0])
	}
	wantRoles := []schema.RoleType{schema.User, schema.Assistant, schema.User}
	for i, role := range wantRoles {
		if input[i+1].Role != role {
			t.Fatalf("turn %d role = %s, want %s", i, input[i+1].Role, role)
		}
	}
}

func TestCompleteRebuildsChainOnSettingsChange(t *testing.T) {
	fake := &fakeChatModel{reply: "ok"}
	svc, src, built := newTestService(fake)
	prompt := Prompt{System: "s", Turns: []Turn{{Role: RoleUser, Content: "x"}}}

	for i := 0; i < 2; i++ {
		if _, err := svc.Complete(context.Background(), prompt); err != nil {
			t.Fatalf("Complete err: %v", err)
		}
	}
	if len(*built) != 1 {
		t.Fatalf("expected chain to be cached, factory called %d times", len(*built))
	}

	src.set(settingsmodel.Settings{OllamaHost: "http://h2", LLMModel: "m2"})
	if _, err := svc.Complete(context.Background(), prompt); err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if len(*built) != 2 || (*built)[1].LLMModel != "m2" {
		t.Fatalf("expected rebuild for new settings, got %#v", *built)
	}
}

func TestCompleteSurfacesBackendErrors(t *testing.T) {
	boom := errors.New("connection refused")
	svc, _, _ := newTestService(&fakeChatModel{err: boom})

	_, err := svc.Complete(context.Background(), Prompt{System: "s", Turns: []Turn{{Role: RoleUser, Content: "x"}}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

func TestCompleteRejectsEmptyReply(t *testing.T) {
	svc, _, _ := newTestService(&fakeChatModel{reply: "   "})

	_, err := svc.Complete(context.Background(), Prompt{System: "s", Turns: []Turn{{Role: RoleUser, Content: "x"}}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestStreamForwardsDeltas(t *testing.T) {
	svc, _, _ := newTestService(&fakeChatModel{chunks: []string{"Hel", "lo", " there"}})

	var deltas []string
	reply, err := svc.Stream(context.Background(), Prompt{System: "s", Turns: []Turn{{Role: RoleUser, Content: "x"}}}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream err: %v", err)
	}
	if reply != "Hello there" {
		t.Fatalf("reply = %q", reply)
	}
	if strings.Join(deltas, "|") != "Hel|lo| there" {
		t.Fatalf("deltas = %v", deltas)
	}
}

func TestStreamAbortsOnCallbackError(t *testing.T) {
	svc, _, _ := newTestService(&fakeChatModel{chunks: []string{"a", "b"}})
	stop := errors.New("client gone")

	_, err := svc.Stream(context.Background(), Prompt{System: "s", Turns: []Turn{{Role: RoleUser, Content: "x"}}}, func(string) error {
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestPersonaPromptNamesBothSides(t *testing.T) {
	text := PersonaPrompt{Persona: "Alice", Counterpart: "Bob"}.System()
	if !strings.Contains(text, "acting as 'Alice'") || !strings.Contains(text, "with 'Bob'") {
		t.Fatalf("prompt missing names: %q", text)
	}
	if !strings.Contains(text, "concise") {
		t.Fatalf("prompt missing brevity instruction: %q", text)
	}
}

func TestNewModelFactoryValidatesProvider(t *testing.T) {
	if _, err := NewModelFactory(ProviderConfig{Provider: "mystery"}); err == nil {
		t.Fatal("expected unknown provider error")
	}
	if _, err := NewModelFactory(ProviderConfig{Provider: ProviderArk}); err == nil {
		t.Fatal("expected missing ark key error")
	}
	for _, p := range []string{"", ProviderOllama, "OpenAI"} {
		if _, err := NewModelFactory(ProviderConfig{Provider: p}); err != nil {
			t.Fatalf("provider %q err: %v", p, err)
		}
	}
}
