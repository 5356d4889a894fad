package update

// State is a position in the update sequence. The sequence is strictly
// linear; there is no branching back. The rear-only variant walks the
// same space, entering at StateRearUploadStarted after the info query.
type State int

const (
	StateIdle State = iota
	StateInfoQueried
	StateMainUploaded
	StateMainProcessed
	StateMainRebooted
	StateRearUploadStarted
	StateRearUploaded
	StateRearProcessed
	StateRearRebooted
	StateVerified
	StateSucceeded
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateInfoQueried:       "info queried",
	StateMainUploaded:      "main uploaded",
	StateMainProcessed:     "main processed",
	StateMainRebooted:      "main rebooted",
	StateRearUploadStarted: "rear upload started",
	StateRearUploaded:      "rear uploaded",
	StateRearProcessed:     "rear processed",
	StateRearRebooted:      "rear rebooted",
	StateVerified:          "verified",
	StateSucceeded:         "succeeded",
	StateFailed:            "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}
