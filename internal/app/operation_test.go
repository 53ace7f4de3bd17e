package app

import (
	"errors"
	"testing"
	"time"

	"refile-go/internal/testutil"
)

func TestNewOperation(t *testing.T) {
	clock := testutil.FixedClock()
	ids := testutil.NewStubIDGenerator()

	first := NewOperation("push", ids, clock)
	second := NewOperation("pull", ids, clock)

	if first.ID == "" || first.ID == second.ID {
		t.Errorf("operation ids = %q, %q; want distinct non-empty", first.ID, second.ID)
	}
	if first.Name != "push" {
		t.Errorf("Name = %q, want push", first.Name)
	}
	if !first.StartedAt.Equal(clock.Now()) {
		t.Errorf("StartedAt = %v, want %v", first.StartedAt, clock.Now())
	}
	if first.Status != "success" || first.Failed() {
		t.Errorf("new operation status = %q", first.Status)
	}
}

func TestOperation_Record(t *testing.T) {
	tests := []struct {
		name string
		errs []error
		want bool
	}{
		{name: "no errors", errs: []error{nil, nil}, want: false},
		{name: "one error", errs: []error{nil, errors.New("boom")}, want: true},
		{name: "error then success stays failed", errs: []error{errors.New("boom"), nil}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("serve", testutil.NewStubIDGenerator(), testutil.NewStubClock(time.Unix(0, 0)))
			for _, err := range tt.errs {
				if got := op.Record(err); got != err {
					t.Errorf("Record() = %v, want %v", got, err)
				}
			}
			if op.Failed() != tt.want {
				t.Errorf("Failed() = %v, want %v", op.Failed(), tt.want)
			}
		})
	}
}
