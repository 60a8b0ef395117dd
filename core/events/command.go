package events

// Command outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeInvalid = "invalid"
	OutcomeUnknown = "unknown"
	OutcomeFailed  = "failed"
)

// CommandEvent is published for every entry of an inbound pin command.
type CommandEvent struct {
	Pin     string
	Value   string
	Outcome string
	Err     error
}
