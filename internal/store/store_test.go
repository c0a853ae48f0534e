package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "invocations.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndListForFunction(t *testing.T) {
	s := newTestStore(t)

	inv := &Invocation{
		ID: "inv-1", FunctionID: "fn-1", InputJSON: `{"n":7}`, OutputJSON: `{"echo":{"n":7}}`,
		Status: StatusSuccess, DurationMS: 42, Source: SourceDirect, CreatedAt: time.Now(),
	}
	if err := s.Append(inv); err != nil {
		t.Fatalf("Append: %v", err)
	}

	list, err := s.ListForFunction("fn-1", 0)
	if err != nil {
		t.Fatalf("ListForFunction: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(list))
	}
	if list[0].Status != StatusSuccess || list[0].HTTPMethod != "" {
		t.Errorf("unexpected invocation contents: %+v", list[0])
	}
}

func TestListForFunctionNewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	for i := 0; i < 3; i++ {
		s.Append(&Invocation{
			ID: fmt.Sprintf("inv-%d", i), FunctionID: "fn-1", Status: StatusSuccess,
			Source: SourceDirect, CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}

	list, err := s.ListForFunction("fn-1", 50)
	if err != nil {
		t.Fatalf("ListForFunction: %v", err)
	}
	if len(list) != 3 || list[0].ID != "inv-2" {
		t.Errorf("expected newest-first ordering starting with inv-2, got %+v", list)
	}
}

func TestAggregateForFunctions(t *testing.T) {
	s := newTestStore(t)

	s.Append(&Invocation{ID: "a", FunctionID: "fn-1", Status: StatusSuccess, DurationMS: 100, Source: SourceDirect, CreatedAt: time.Now()})
	s.Append(&Invocation{ID: "b", FunctionID: "fn-1", Status: StatusError, DurationMS: 50, Source: SourceDirect, CreatedAt: time.Now()})
	s.Append(&Invocation{ID: "c", FunctionID: "fn-2", Status: StatusSuccess, DurationMS: 300, Source: SourceGateway, CreatedAt: time.Now()})

	agg, err := s.AggregateForFunctions([]string{"fn-1", "fn-2"})
	if err != nil {
		t.Fatalf("AggregateForFunctions: %v", err)
	}
	if agg.TotalInvocations != 3 {
		t.Errorf("expected 3 total invocations, got %d", agg.TotalInvocations)
	}
	if agg.SuccessRate < 0.66 || agg.SuccessRate > 0.67 {
		t.Errorf("expected success rate ~0.667, got %f", agg.SuccessRate)
	}
}

func TestAggregateForFunctionsEmpty(t *testing.T) {
	s := newTestStore(t)
	agg, err := s.AggregateForFunctions(nil)
	if err != nil {
		t.Fatalf("AggregateForFunctions: %v", err)
	}
	if agg.TotalInvocations != 0 {
		t.Error("expected zero-value aggregate for no function ids")
	}
}
