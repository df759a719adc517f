package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testState records visited steps for assertions.
type testState struct {
	BaseState
	Visited []string
	Flag    bool
}

func (s *testState) Advance(step string) {
	s.BaseState.Advance(step)
	s.Visited = append(s.Visited, step)
}

func noop(ctx context.Context, s *testState) error { return nil }

func TestRunLinearGraph(t *testing.T) {
	t.Parallel()

	g := New[*testState]("linear", nil).
		AddNode("a", noop, "b").
		AddNode("b", noop, "c").
		AddNode("c", noop, End).
		SetEntry("a")

	st := &testState{}
	if err := g.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"a", "b", "c"}
	if len(st.Visited) != len(want) {
		t.Fatalf("visited %v, want %v", st.Visited, want)
	}
	for i, step := range want {
		if st.Visited[i] != step {
			t.Errorf("step %d: got %q, want %q", i, st.Visited[i], step)
		}
	}
	if st.CurrentStep != "c" {
		t.Errorf("CurrentStep = %q, want %q", st.CurrentStep, "c")
	}
}

func TestRunConditionalRouting(t *testing.T) {
	t.Parallel()

	selector := func(s *testState) string {
		if s.Flag {
			return "yes"
		}
		return "no"
	}

	build := func() *Graph[*testState] {
		return New[*testState]("cond", nil).
			AddConditionalNode("decide", noop, selector).
			AddNode("yes", noop, End).
			AddNode("no", noop, End).
			SetEntry("decide")
	}

	tests := []struct {
		name string
		flag bool
		want string
	}{
		{"flag set routes to yes", true, "yes"},
		{"flag unset routes to no", false, "no"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st := &testState{Flag: tt.flag}
			if err := build().Run(context.Background(), st); err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if st.CurrentStep != tt.want {
				t.Errorf("final step = %q, want %q", st.CurrentStep, tt.want)
			}
		})
	}
}

func TestRunTrapsStepErrors(t *testing.T) {
	t.Parallel()

	failing := func(ctx context.Context, s *testState) error {
		return errors.New("boom")
	}

	g := New[*testState]("errors", nil).
		AddNode("a", failing, "b").
		AddNode("b", noop, End).
		SetEntry("a")

	st := &testState{}
	if err := g.Run(context.Background(), st); err != nil {
		t.Fatalf("step error should not abort the run: %v", err)
	}

	if len(st.Errors) != 1 {
		t.Fatalf("Errors = %v, want one entry", st.Errors)
	}
	if !strings.Contains(st.Errors[0], "a:") || !strings.Contains(st.Errors[0], "boom") {
		t.Errorf("error %q should name the step and cause", st.Errors[0])
	}
	if st.CurrentStep != "b" {
		t.Errorf("run should continue past the failed step, stopped at %q", st.CurrentStep)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	t.Parallel()

	panicking := func(ctx context.Context, s *testState) error {
		panic("unexpected")
	}

	g := New[*testState]("panics", nil).
		AddNode("a", panicking, "b").
		AddNode("b", noop, End).
		SetEntry("a")

	st := &testState{}
	if err := g.Run(context.Background(), st); err != nil {
		t.Fatalf("panic should be trapped as a step error: %v", err)
	}
	if len(st.Errors) != 1 {
		t.Fatalf("Errors = %v, want one entry", st.Errors)
	}
	if st.CurrentStep != "b" {
		t.Errorf("run should continue past the panicking step, stopped at %q", st.CurrentStep)
	}
}

func TestRunStepCap(t *testing.T) {
	t.Parallel()

	// a and b route to each other forever.
	g := New[*testState]("loop", nil).
		AddNode("a", noop, "b").
		AddNode("b", noop, "a").
		SetEntry("a").
		SetMaxSteps(7)

	st := &testState{}
	err := g.Run(context.Background(), st)
	if err == nil {
		t.Fatal("expected step cap error")
	}
	if len(st.Visited) != 7 {
		t.Errorf("executed %d steps, want exactly 7", len(st.Visited))
	}
}

func TestRunContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	cancelling := func(ctx context.Context, s *testState) error {
		cancel()
		return nil
	}

	g := New[*testState]("cancel", nil).
		AddNode("a", cancelling, "b").
		AddNode("b", noop, End).
		SetEntry("a")

	st := &testState{}
	err := g.Run(ctx, st)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if st.CurrentStep != "a" {
		t.Errorf("no step should run after cancellation, stopped at %q", st.CurrentStep)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		graph   *Graph[*testState]
		wantErr bool
	}{
		{
			name: "valid graph",
			graph: New[*testState]("ok", nil).
				AddNode("a", noop, End).
				SetEntry("a"),
			wantErr: false,
		},
		{
			name:    "missing entry",
			graph:   New[*testState]("no-entry", nil).AddNode("a", noop, End),
			wantErr: true,
		},
		{
			name: "entry not a node",
			graph: New[*testState]("bad-entry", nil).
				AddNode("a", noop, End).
				SetEntry("missing"),
			wantErr: true,
		},
		{
			name: "next points at undefined node",
			graph: New[*testState]("dangling", nil).
				AddNode("a", noop, "ghost").
				SetEntry("a"),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.graph.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSelectorReturningUnknownNode(t *testing.T) {
	t.Parallel()

	g := New[*testState]("unknown", nil).
		AddConditionalNode("a", noop, func(s *testState) string { return "ghost" }).
		SetEntry("a")

	st := &testState{}
	if err := g.Run(context.Background(), st); err == nil {
		t.Fatal("expected error for selector routing to undefined node")
	}
}

func TestRunStepTimeout(t *testing.T) {
	t.Parallel()

	block := func(ctx context.Context, s *testState) error {
		<-ctx.Done()
		return ctx.Err()
	}

	g := New[*testState]("timeout", nil).
		AddNode("slow", block, "after").
		AddNode("after", noop, End).
		SetEntry("slow").
		SetStepTimeout(10 * time.Millisecond)

	st := &testState{}
	if err := g.Run(context.Background(), st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(st.Errors) != 1 {
		t.Fatalf("Errors = %v, want one deadline error", st.Errors)
	}
	if !strings.Contains(st.Errors[0], "slow") {
		t.Errorf("error %q should name the timed-out step", st.Errors[0])
	}
	if st.CurrentStep != "after" {
		t.Errorf("CurrentStep = %q, want %q", st.CurrentStep, "after")
	}
}
