package health

// Status is the availability of the confidentiality gateway as last observed
// by a Monitor.
type Status string

const (
	// StatusUnknown is held until the first probe completes.
	StatusUnknown Status = "unknown"
	StatusUp      Status = "up"
	StatusDown    Status = "down"
)

func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusUnknown, StatusUp, StatusDown:
		return true
	default:
		return false
	}
}

// gaugeValue maps a status onto the metrics.GatewayStatus encoding.
func (s Status) gaugeValue() float64 {
	switch s {
	case StatusUp:
		return 1
	case StatusDown:
		return 2
	default:
		return 0
	}
}
