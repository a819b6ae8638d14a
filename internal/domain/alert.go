package domain

// AlertKind names an external entry alert. Each kind maps to exactly one side.
type AlertKind string

const (
	AlertGreenBottom AlertKind = "green1_bottom_60"
	AlertRedPeak     AlertKind = "red1_peak_60"
)

// Side returns the position side bound to the alert kind.
func (k AlertKind) Side() (Side, bool) {
	switch k {
	case AlertGreenBottom:
		return SideLong, true
	case AlertRedPeak:
		return SideShort, true
	default:
		return "", false
	}
}

// ParseAlertKind validates a raw alert name.
func ParseAlertKind(raw string) (AlertKind, error) {
	k := AlertKind(raw)
	if _, ok := k.Side(); !ok {
		return "", ErrUnknownAlert
	}
	return k, nil
}
