package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nao1215/prism/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, doc *model.Document) error
	callCount int
	ctxErr    error
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, doc *model.Document) error {
	m.callCount++
	m.ctxErr = ctx.Err()
	if m.doFunc != nil {
		return m.doFunc(ctx, doc)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func testDocument() *model.Document {
	req := model.NewDocumentRequest("0012345678", model.Form2, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	return model.NewDocument("session", req)
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.continueOnError {
			t.Error("expected continueOnError to be false")
		}
	})

	t.Run("lists final steps last", func(t *testing.T) {
		t.Parallel()

		p := New(WithFinally(&mockStep{name: "ledger"}))
		p.AddSteps(&mockStep{name: "capture"}, &mockStep{name: "redact"})

		names := p.StepNames()
		expected := []string{"capture", "redact", "ledger"}
		if len(names) != len(expected) {
			t.Fatalf("got %v, expected %v", names, expected)
		}
		for i := range expected {
			if names[i] != expected[i] {
				t.Errorf("name %d: got %q, expected %q", i, names[i], expected[i])
			}
		}
		if p.StepCount() != 2 {
			t.Errorf("expected 2 main steps, got %d", p.StepCount())
		}
	})
}

// TestPipelineExecute tests step execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order and completes", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *model.Document) error {
				order = append(order, name)
				return nil
			}}
		}
		p := New(WithFinally(record("ledger")))
		p.AddSteps(record("capture"), record("redact"))

		doc := testDocument()
		if err := p.Execute(context.Background(), doc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(order) != 3 || order[0] != "capture" || order[2] != "ledger" {
			t.Errorf("unexpected order %v", order)
		}
		if doc.Status != model.StatusComplete {
			t.Errorf("got %q, expected complete", doc.Status)
		}
		if len(doc.PerformedSteps) != 3 {
			t.Errorf("unexpected performed steps %v", doc.PerformedSteps)
		}
		if doc.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set")
		}
	})

	t.Run("stops on first error but still runs final steps", func(t *testing.T) {
		t.Parallel()

		failing := &mockStep{name: "capture", doFunc: func(_ context.Context, doc *model.Document) error {
			err := errors.New("paper jam")
			doc.Fail(model.StatusCaptureFailed, err)
			return err
		}}
		skipped := &mockStep{name: "redact"}
		ledger := &mockStep{name: "ledger"}
		p := New(WithFinally(ledger))
		p.AddSteps(failing, skipped)

		doc := testDocument()
		if err := p.Execute(context.Background(), doc); err == nil {
			t.Fatal("expected error")
		}
		if skipped.callCount != 0 {
			t.Error("step after the failure ran")
		}
		if ledger.callCount != 1 {
			t.Error("final step did not run")
		}
		if doc.Status != model.StatusCaptureFailed {
			t.Errorf("got %q, expected capture_failed", doc.Status)
		}
		if doc.ErrorMessage != "paper jam" {
			t.Errorf("unexpected error message %q", doc.ErrorMessage)
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		second := &mockStep{name: "second"}
		p := New(WithContinueOnError(true))
		p.AddSteps(&mockStep{name: "first", doFunc: func(context.Context, *model.Document) error {
			return errors.New("boom")
		}}, second)

		doc := testDocument()
		if err := p.Execute(context.Background(), doc); err == nil {
			t.Fatal("expected the first error to be returned")
		}
		if second.callCount != 1 {
			t.Error("expected second step to run")
		}
	})

	t.Run("marks the document cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "capture"}
		ledger := &mockStep{name: "ledger"}
		p := New(WithFinally(ledger))
		p.AddStep(step)

		doc := testDocument()
		if err := p.Execute(ctx, doc); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step ran after cancellation")
		}
		if doc.Status != model.StatusCancelled {
			t.Errorf("got %q, expected cancelled", doc.Status)
		}
		if ledger.callCount != 1 || ledger.ctxErr != nil {
			t.Errorf("final step must run with a live context, calls=%d err=%v", ledger.callCount, ledger.ctxErr)
		}
	})
}
