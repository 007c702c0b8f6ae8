package escrow

import (
	"fmt"
	"time"
)

// Timelock planning for conservative cross-chain coordination. The planner
// turns negotiated per-stage durations for both legs into absolute deadlines
// from a shared reference time and checks the safety margins that keep a
// resolver from losing destination funds without a path to recover source
// funds.

const (
	// DefaultMinStage is the minimum duration any timelock stage must span.
	DefaultMinStage = 3 * time.Minute
	// DefaultCrossChainBuffer is the minimum gap between the destination and
	// source cancellation deadlines: the resolver must always be able to
	// cancel the source leg after the destination leg became cancellable.
	DefaultCrossChainBuffer = 3 * time.Minute
)

// StageDurations expresses one leg's schedule as offsets in seconds from the
// deployment reference time. Each stage begins where the offset says and ends
// at the next offset.
type StageDurations struct {
	Withdrawal         int64
	PublicWithdrawal   int64
	Cancellation       int64
	PublicCancellation int64
}

// DefaultSourceDurations mirrors the conservative production schedule: one
// hour of private withdrawal, then public withdrawal, cancellation opening at
// three hours and public cancellation at four.
func DefaultSourceDurations() StageDurations {
	return StageDurations{
		Withdrawal:         3600,
		PublicWithdrawal:   7200,
		Cancellation:       10800,
		PublicCancellation: 14400,
	}
}

// DefaultDestinationDurations gives the destination leg a tighter schedule so
// its cancellation window opens well before the source leg's.
func DefaultDestinationDurations() StageDurations {
	return StageDurations{
		Withdrawal:         1800,
		PublicWithdrawal:   3600,
		Cancellation:       5400,
		PublicCancellation: 7200,
	}
}

// Plan holds the absolute deadline schedules for both legs of one fill.
type Plan struct {
	Src Timelocks
	Dst Timelocks
}

// Validation is the outcome of schedule validation. Rather than failing on
// the first problem it collects every violated constraint so callers can
// present actionable diagnostics.
type Validation struct {
	OK         bool
	Violations []string
}

func (v *Validation) add(format string, args ...any) {
	v.OK = false
	v.Violations = append(v.Violations, fmt.Sprintf(format, args...))
}

// Planner derives cross-chain-consistent deadline schedules. It is pure
// computation and carries no state beyond its configured safety margins.
type Planner struct {
	minStage         time.Duration
	crossChainBuffer time.Duration
}

// NewPlanner constructs a planner. Non-positive arguments fall back to the
// defaults.
func NewPlanner(minStage, crossChainBuffer time.Duration) *Planner {
	p := &Planner{minStage: minStage, crossChainBuffer: crossChainBuffer}
	if p.minStage <= 0 {
		p.minStage = DefaultMinStage
	}
	if p.crossChainBuffer <= 0 {
		p.crossChainBuffer = DefaultCrossChainBuffer
	}
	return p
}

// Plan converts per-stage durations for both legs into absolute deadlines
// anchored at deployedAt and validates the schedule. The plan is returned
// even when validation fails so diagnostics can reference the computed
// deadlines; callers must not act on a plan whose validation is not OK.
func (p *Planner) Plan(deployedAt int64, src, dst StageDurations) (*Plan, *Validation) {
	plan := &Plan{
		Src: absolute(deployedAt, src),
		Dst: absolute(deployedAt, dst),
	}
	return plan, p.Validate(plan)
}

func absolute(deployedAt int64, d StageDurations) Timelocks {
	return Timelocks{
		DeployedAt:              deployedAt,
		WithdrawalStart:         deployedAt + d.Withdrawal,
		PublicWithdrawalStart:   deployedAt + d.PublicWithdrawal,
		CancellationStart:       deployedAt + d.Cancellation,
		PublicCancellationStart: deployedAt + d.PublicCancellation,
	}
}

// Validate checks a computed plan against the planner's safety margins:
// stages must be ordered and at least minStage long on both legs, and the
// source cancellation deadline must trail the destination cancellation
// deadline by at least the cross-chain buffer.
func (p *Planner) Validate(plan *Plan) *Validation {
	v := &Validation{OK: true}
	if plan == nil {
		v.add("no plan supplied")
		return v
	}
	p.validateLeg(v, "src", plan.Src)
	p.validateLeg(v, "dst", plan.Dst)
	minGap := int64(p.crossChainBuffer / time.Second)
	gap := plan.Src.CancellationStart - plan.Dst.CancellationStart
	if gap < minGap {
		v.add("src cancellation must trail dst cancellation by at least %s, gap is %s",
			p.crossChainBuffer, FormatDuration(time.Duration(gap)*time.Second))
	}
	return v
}

func (p *Planner) validateLeg(v *Validation, leg string, tl Timelocks) {
	minStage := int64(p.minStage / time.Second)
	stages := []struct {
		name  string
		start int64
		end   int64
	}{
		{"withdrawal delay", tl.DeployedAt, tl.WithdrawalStart},
		{"private withdrawal", tl.WithdrawalStart, tl.PublicWithdrawalStart},
		{"public withdrawal", tl.PublicWithdrawalStart, tl.CancellationStart},
		{"private cancellation", tl.CancellationStart, tl.PublicCancellationStart},
	}
	for _, stage := range stages {
		if stage.end-stage.start < minStage {
			v.add("%s: %s stage is %s, minimum %s", leg, stage.name,
				FormatDuration(time.Duration(stage.end-stage.start)*time.Second), p.minStage)
		}
	}
	if tl.CancellationStart < tl.WithdrawalStart {
		v.add("%s: cancellation opens before withdrawal", leg)
	}
}

// Phase identifies which timelock window an escrow is in at a point in time.
type Phase uint8

const (
	PhaseBeforeWithdrawal Phase = iota
	PhasePrivateWithdrawal
	PhasePublicWithdrawal
	PhasePrivateCancellation
	PhasePublicCancellation
)

func (p Phase) String() string {
	switch p {
	case PhaseBeforeWithdrawal:
		return "before_withdrawal"
	case PhasePrivateWithdrawal:
		return "private_withdrawal"
	case PhasePublicWithdrawal:
		return "public_withdrawal"
	case PhasePrivateCancellation:
		return "private_cancellation"
	case PhasePublicCancellation:
		return "public_cancellation"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// StatusAt reports the timelock phase at the given time. Phases are gated
// purely by deadlines; whether a transition is actually possible still
// depends on the escrow state.
func StatusAt(tl Timelocks, now int64) Phase {
	switch {
	case now < tl.WithdrawalStart:
		return PhaseBeforeWithdrawal
	case now < tl.PublicWithdrawalStart:
		return PhasePrivateWithdrawal
	case now < tl.CancellationStart:
		return PhasePublicWithdrawal
	case now < tl.PublicCancellationStart:
		return PhasePrivateCancellation
	default:
		return PhasePublicCancellation
	}
}

// FormatDuration renders a duration in a compact human-readable form for
// validation diagnostics.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh%dm", days, hours%24, minutes%60)
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, seconds%60)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
