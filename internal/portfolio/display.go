package portfolio

// Role identifies the viewer of the dashboard. Monetary values are shown
// unscaled to the admin role and scaled by a fixed multiplier to every
// other role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleObserver Role = "observer"
)

// DisplayScaler is the single presentation-boundary transform for
// monetary values. It is never applied inside the reconciliation or
// aggregation math; callers scale values once, at render time.
type DisplayScaler struct {
	role       Role
	multiplier float64
	preview    bool
}

// NewDisplayScaler builds a scaler for the given role. A multiplier of 0
// is treated as 1 so a missing config value cannot zero out the display.
func NewDisplayScaler(role Role, multiplier float64) *DisplayScaler {
	if multiplier == 0 {
		multiplier = 1
	}
	return &DisplayScaler{role: role, multiplier: multiplier}
}

// SetPreview toggles the multiplier on for the admin role, which
// otherwise always sees unscaled values. The toggle is ignored for
// non-admin roles: they are always scaled.
func (s *DisplayScaler) SetPreview(on bool) {
	if s.role == RoleAdmin {
		s.preview = on
	}
}

// Scale applies the role-dependent multiplier to one monetary value.
func (s *DisplayScaler) Scale(v float64) float64 {
	if s.role == RoleAdmin && !s.preview {
		return v
	}
	return v * s.multiplier
}
