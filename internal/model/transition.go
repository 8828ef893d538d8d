package model

// TransitionType classifies a subscription change.
type TransitionType string

const (
	TransitionFirstTime TransitionType = "first_time"
	TransitionRenewal   TransitionType = "renewal"
	TransitionUpgrade   TransitionType = "upgrade"
	TransitionDowngrade TransitionType = "downgrade"
)

// AutoReactivates reports whether students archived by this transition
// are reactivated without operator input.
func (t TransitionType) AutoReactivates() bool {
	switch t {
	case TransitionRenewal, TransitionUpgrade:
		return true
	case TransitionFirstTime, TransitionDowngrade:
		return false
	}
	return false
}

// Archives reports whether the transition supersedes a previous plan.
func (t TransitionType) Archives() bool {
	return t != TransitionFirstTime
}
