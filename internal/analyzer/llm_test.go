package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/hejijunhao/warden/internal/engine/compactor"
	"github.com/hejijunhao/warden/internal/model"
)

type fakeModel struct {
	content string
	err     error
	prompts []string
}

func (m *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, msg := range msgs {
		for _, p := range msg.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				m.prompts = append(m.prompts, tc.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.content}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func TestLLMAnalyze(t *testing.T) {
	m := &fakeModel{content: `{"severity":"high","summary":"db down","affected_services":["api"],"error_patterns":["db-down"],"actionable":true,"issue_title":"DB down"}`}
	a := New(m)

	batch := append(entries("api", model.LevelError, 12), entries("web", model.LevelInfo, 3)...)
	f, err := a.Analyze(context.Background(), batch, model.Target{Name: "shop", Project: "p1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Severity != model.SeverityHigh || f.IssueTitle != "DB down" {
		t.Fatalf("unexpected finding: %+v", f)
	}

	if len(m.prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(m.prompts))
	}
	p := m.prompts[0]
	for _, want := range []string{`"shop" (p1)`, "Errors   : 12", "Services : api, web", "(x12 in 11s)"} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestLLMAnalyzeEmptyBatchSkipsModel(t *testing.T) {
	m := &fakeModel{}
	f, err := New(m).Analyze(context.Background(), nil, model.Target{Project: "p1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Actionable || len(m.prompts) != 0 {
		t.Fatalf("expected no model call and non-actionable finding, got %+v", f)
	}
}

func TestLLMAnalyzeModelError(t *testing.T) {
	m := &fakeModel{err: errors.New("rate limited")}
	_, err := New(m).Analyze(context.Background(), entries("api", model.LevelError, 1), model.Target{Project: "p1"})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected wrapped model error, got %v", err)
	}
}

func TestLLMAnalyzeMalformed(t *testing.T) {
	m := &fakeModel{content: "sorry"}
	_, err := New(m).Analyze(context.Background(), entries("api", model.LevelError, 1), model.Target{Project: "p1"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestLLMPromptBudget(t *testing.T) {
	m := &fakeModel{content: `{"severity":"low","summary":"ok"}`}
	a := New(m, WithPromptBudget(20), WithVerbosity(compactor.Minimal))

	var batch []model.LogEntry
	for i, svc := range []string{"a", "b", "c", "d", "e", "f"} {
		e := entries(svc, model.LevelInfo, 1)[0]
		e.Message = strings.Repeat("word ", 10) + svc
		e.Timestamp = e.Timestamp.Add(time.Duration(i) * time.Second)
		batch = append(batch, e)
	}
	if _, err := a.Analyze(context.Background(), batch, model.Target{Project: "p1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(m.prompts[0], "lower-priority lines omitted") {
		t.Fatalf("expected omission note in prompt:\n%s", m.prompts[0])
	}
}

func TestLLMPing(t *testing.T) {
	m := &fakeModel{content: "OK"}
	if err := New(m).Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.err = errors.New("bad key")
	if err := New(m).Ping(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewModelUnknownProvider(t *testing.T) {
	if _, err := NewModel(ModelConfig{Provider: "nope"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestNewModelOpenAI(t *testing.T) {
	m, err := NewModel(ModelConfig{Provider: "openai", APIKey: "sk-test", Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m == nil {
		t.Fatal("expected model")
	}
}
