package game

import (
	"math"
	"time"
)

// MovementGuard is the speed/teleport check applied to every position update.
// It flags implausible displacement but never rejects the sample: the
// baseline always advances so one spike cannot poison later checks.
type MovementGuard struct {
	// MaxSpeed is the plausibility ceiling in units/second, roughly twice the
	// nominal movement speed to absorb sprinting and network jitter.
	MaxSpeed float64

	// ResetGap resets the baseline after idle or lag instead of flagging a
	// huge apparent jump.
	ResetGap time.Duration
}

// Apply evaluates one sample against the session baseline and advances it.
func (g MovementGuard) Apply(s *Session, p Position, now time.Time) (speed float64, flagged bool) {
	if !s.HasPos || now.Sub(s.LastUpdate) > g.ResetGap {
		s.Pos = p
		s.HasPos = true
		s.LastUpdate = now
		return 0, false
	}

	dt := now.Sub(s.LastUpdate).Seconds()
	if dt > 0 {
		dx := p.X - s.Pos.X
		dy := p.Y - s.Pos.Y
		dz := p.Z - s.Pos.Z
		dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
		speed = dist / dt
		flagged = speed > g.MaxSpeed
	}

	s.Pos = p
	s.LastUpdate = now
	return speed, flagged
}
