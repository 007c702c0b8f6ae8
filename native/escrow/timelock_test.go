package escrow

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultScheduleIsValid(t *testing.T) {
	planner := NewPlanner(0, 0)
	plan, validation := planner.Plan(1_700_000_000, DefaultSourceDurations(), DefaultDestinationDurations())
	if !validation.OK {
		t.Fatalf("default schedule invalid: %v", validation.Violations)
	}
	if plan.Src.CancellationStart != 1_700_000_000+10800 {
		t.Fatalf("src cancellation = %d, want deployedAt+10800", plan.Src.CancellationStart)
	}
	if plan.Dst.CancellationStart != 1_700_000_000+5400 {
		t.Fatalf("dst cancellation = %d, want deployedAt+5400", plan.Dst.CancellationStart)
	}
}

func TestPlanRequiresCrossChainBuffer(t *testing.T) {
	planner := NewPlanner(0, 0)
	// Destination cancellation at the same instant as source cancellation:
	// the resolver has no window to recover the source leg.
	dst := DefaultDestinationDurations()
	dst.Cancellation = DefaultSourceDurations().Cancellation
	dst.PublicCancellation = dst.Cancellation + 3600

	_, validation := planner.Plan(1_700_000_000, DefaultSourceDurations(), dst)
	if validation.OK {
		t.Fatalf("schedule without cross-chain buffer must be rejected")
	}
	found := false
	for _, violation := range validation.Violations {
		if strings.Contains(violation, "trail") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a cross-chain buffer violation, got %v", validation.Violations)
	}
}

func TestPlanRejectsShortStages(t *testing.T) {
	planner := NewPlanner(3*time.Minute, 3*time.Minute)
	src := StageDurations{
		Withdrawal:         60, // below the three-minute minimum
		PublicWithdrawal:   7200,
		Cancellation:       10800,
		PublicCancellation: 14400,
	}
	_, validation := planner.Plan(1_700_000_000, src, DefaultDestinationDurations())
	if validation.OK {
		t.Fatalf("sub-minimum stage must be rejected")
	}
}

func TestPlanCollectsAllViolations(t *testing.T) {
	planner := NewPlanner(0, 0)
	src := StageDurations{Withdrawal: 1, PublicWithdrawal: 2, Cancellation: 3, PublicCancellation: 4}
	dst := StageDurations{Withdrawal: 1, PublicWithdrawal: 2, Cancellation: 3, PublicCancellation: 4}
	_, validation := planner.Plan(1_700_000_000, src, dst)
	if validation.OK {
		t.Fatalf("degenerate plan must be rejected")
	}
	if len(validation.Violations) < 2 {
		t.Fatalf("expected violations from both legs, got %v", validation.Violations)
	}
}

func TestStatusAtPhases(t *testing.T) {
	tl := Timelocks{
		DeployedAt:              1000,
		WithdrawalStart:         2000,
		PublicWithdrawalStart:   3000,
		CancellationStart:       4000,
		PublicCancellationStart: 5000,
	}
	cases := []struct {
		now  int64
		want Phase
	}{
		{1500, PhaseBeforeWithdrawal},
		{2000, PhasePrivateWithdrawal},
		{2999, PhasePrivateWithdrawal},
		{3000, PhasePublicWithdrawal},
		{4000, PhasePrivateCancellation},
		{5000, PhasePublicCancellation},
		{9999, PhasePublicCancellation},
	}
	for _, tc := range cases {
		if got := StatusAt(tl, tc.now); got != tc.want {
			t.Fatalf("StatusAt(%d) = %s, want %s", tc.now, got, tc.want)
		}
	}
}
