package cycle

// State is the coordinator's position in a cycle.
type State int32

const (
	Idle State = iota
	Collecting
	CheckingBatchDedup
	Analyzing
	Acting
	Finalizing
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case CheckingBatchDedup:
		return "checking_batch_dedup"
	case Analyzing:
		return "analyzing"
	case Acting:
		return "acting"
	case Finalizing:
		return "finalizing"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
