package actor

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/avalon/pkg/errors"
	"github.com/jllopis/avalon/pkg/game"
	"github.com/jllopis/avalon/pkg/history"
	"github.com/jllopis/avalon/pkg/llm"
	"github.com/jllopis/avalon/pkg/memory"
)

var testSeats = []game.Seat{
	{Index: 0, Name: "Alice", Role: game.Merlin},
	{Index: 1, Name: "Bob", Role: game.Percival},
	{Index: 2, Name: "Carol", Role: game.LoyalServant},
	{Index: 3, Name: "Dave", Role: game.LoyalServant},
	{Index: 4, Name: "Eve", Role: game.Morgana},
	{Index: 5, Name: "Frank", Role: game.Assassin},
}

func testRequest(kind Kind, seat int) Request {
	return Request{
		ID:        "req-1",
		MatchID:   "m1",
		Kind:      kind,
		Seat:      testSeats[seat].Name,
		Knowledge: game.Visibility(testSeats[seat], testSeats),
		Context: Context{
			Round:    1,
			TeamSize: 2,
			Status:   "Mission Status: 0 Success, 0 Fail | Rejections this round: 0/5",
			Leader:   "Alice",
			Players:  game.Names(testSeats),
			Team:     []string{"Alice", "Bob"},
			Options:  []string{Approve, Reject},
		},
	}
}

func TestPromptIncludesPrivateKnowledge(t *testing.T) {
	p := Prompt(testRequest(KindVote, 0))
	for _, want := range []string{
		"You are Alice.",
		"You see the following Evil players: [Eve, Frank]",
		"No previous rounds.",
		"APPROVE or REJECT",
		"Proposed team: [Alice, Bob]",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestPromptPerKind(t *testing.T) {
	tests := []struct {
		kind Kind
		tag  string
		want string
	}{
		{KindPropose, "", "Select exactly 2 players"},
		{KindFinalize, "", "FINAL team"},
		{KindDiscuss, history.TagOpen, "open the discussion"},
		{KindDiscuss, history.TagComment, "Give your view"},
		{KindDiscuss, history.TagClose, "close the discussion"},
		{KindMissionAction, "", "SUCCESS or FAIL"},
		{KindAssassinate, "", "assassination target"},
	}
	for _, tt := range tests {
		req := testRequest(tt.kind, 5)
		req.Context.Tag = tt.tag
		if got := Prompt(req); !strings.Contains(got, tt.want) {
			t.Errorf("%s/%s: prompt missing %q", tt.kind, tt.tag, tt.want)
		}
	}
}

func TestLLMActorSendsSystemAndPrompt(t *testing.T) {
	p := llm.NewScriptedMockProvider("  APPROVE \n")
	a := NewLLM(p, WithModel("deepseek-r1"), WithTemperature(0.7))

	got, err := a.Submit(context.Background(), testRequest(KindVote, 2))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got != "APPROVE" {
		t.Fatalf("expected trimmed answer, got %q", got)
	}
	req, _ := p.LastRequest()
	if req.Model != "deepseek-r1" || req.Temperature != 0.7 {
		t.Fatalf("unexpected request settings: %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || req.Messages[1].Role != llm.RoleUser {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	if info := a.Info(); info.Config != "deepseek-r1" || info.Interactive {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestLLMActorEmptyResponse(t *testing.T) {
	a := NewLLM(llm.NewScriptedMockProvider("   "))
	_, err := a.Submit(context.Background(), testRequest(KindVote, 2))
	if !errors.IsCode(err, errors.CodeActorEmptyResponse) {
		t.Fatalf("expected empty response error, got %v", err)
	}
}

func TestLLMActorMemoryIsPerSeat(t *testing.T) {
	mem := memory.NewInMemoryConversation(memory.ConversationConfig{
		TruncationStrategy: memory.NewWindowStrategy(10, true),
	})
	p := llm.NewScriptedMockProvider("APPROVE", "REJECT", "APPROVE")
	a := NewLLM(p, WithMemory(mem))
	ctx := context.Background()

	if _, err := a.Submit(ctx, testRequest(KindVote, 2)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Submit(ctx, testRequest(KindVote, 2)); err != nil {
		t.Fatal(err)
	}
	req, _ := p.LastRequest()
	// system, remembered question and answer, new prompt
	if len(req.Messages) != 4 {
		t.Fatalf("expected replayed history, got %d messages", len(req.Messages))
	}
	if req.Messages[2].Content != "APPROVE" {
		t.Fatalf("expected earlier answer replayed, got %q", req.Messages[2].Content)
	}

	if _, err := a.Submit(ctx, testRequest(KindVote, 3)); err != nil {
		t.Fatal(err)
	}
	req, _ = p.LastRequest()
	if len(req.Messages) != 2 {
		t.Fatalf("another seat must not see Carol's history, got %d messages", len(req.Messages))
	}
	if n := mem.MessageCount("m1/Carol"); n != 4 {
		t.Fatalf("expected 4 stored messages for Carol, got %d", n)
	}
}

func TestHumanActorRespond(t *testing.T) {
	h := NewHuman()
	req := testRequest(KindVote, 1)

	type answer struct {
		text string
		err  error
	}
	done := make(chan answer, 1)
	go func() {
		text, err := h.Submit(context.Background(), req)
		done <- answer{text, err}
	}()

	var pending Request
	select {
	case pending = <-h.Requests():
	case <-time.After(time.Second):
		t.Fatal("request was not announced")
	}
	if got, ok := h.Pending(); !ok || got.ID != pending.ID {
		t.Fatalf("Pending mismatch: %+v %v", got, ok)
	}

	if err := h.Respond("other", "APPROVE"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
	if err := h.Respond(pending.ID, "approve"); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	res := <-done
	if res.err != nil || res.text != "approve" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := h.Pending(); ok {
		t.Fatal("request still pending after answer")
	}
}

func TestHumanActorCanceled(t *testing.T) {
	h := NewHuman()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-h.Requests()
		cancel()
	}()
	_, err := h.Submit(ctx, testRequest(KindVote, 1))
	if !errors.IsCode(err, errors.CodeContextLost) {
		t.Fatalf("expected context lost, got %v", err)
	}
	if !InfoOf(h).Interactive {
		t.Fatal("human actor must be interactive")
	}
}

func TestConsoleActorReadsLines(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(
		WithConsoleInput(strings.NewReader("approve\nAlice, Bob\n")),
		WithConsoleOutput(&out),
		WithConsoleHistory(false),
	)

	got, err := c.Submit(context.Background(), testRequest(KindVote, 1))
	if err != nil || got != "approve" {
		t.Fatalf("first answer: %q, %v", got, err)
	}
	got, err = c.Submit(context.Background(), testRequest(KindPropose, 0))
	if err != nil || got != "Alice, Bob" {
		t.Fatalf("second answer: %q, %v", got, err)
	}
	if !strings.Contains(out.String(), "Choose APPROVE / REJECT") {
		t.Fatalf("vote options not shown:\n%s", out.String())
	}

	_, err = c.Submit(context.Background(), testRequest(KindVote, 1))
	if !errors.IsCode(err, errors.CodeActorEmptyResponse) {
		t.Fatalf("expected closed input error, got %v", err)
	}
}

func TestConsoleActorTimeout(t *testing.T) {
	r, _ := newBlockingReader()
	c := NewConsole(WithConsoleInput(r), WithConsoleOutput(&bytes.Buffer{}), WithConsoleTimeout(20*time.Millisecond))
	_, err := c.Submit(context.Background(), testRequest(KindVote, 1))
	if !errors.IsCode(err, errors.CodeActorTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

type blockingReader struct{ ch chan []byte }

func newBlockingReader() (*blockingReader, chan []byte) {
	ch := make(chan []byte)
	return &blockingReader{ch: ch}, ch
}

func (b *blockingReader) Read(p []byte) (int, error) {
	return copy(p, <-b.ch), nil
}

func TestFuncAdapter(t *testing.T) {
	var a Actor = Func(func(_ context.Context, req Request) (string, error) {
		return string(req.Kind), nil
	})
	got, _ := a.Submit(context.Background(), testRequest(KindAssassinate, 5))
	if got != "assassinate" {
		t.Fatalf("got %q", got)
	}
	if info := InfoOf(a); info.Type != "actor.Func" {
		t.Fatalf("unexpected info %+v", info)
	}
}
