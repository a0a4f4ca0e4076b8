package orchestrator

// RequestState is the position of a request in the pipeline.
type RequestState int

const (
	StateReceived RequestState = iota
	StateValidated
	StateSynthesizing
	StateArtifactValidated
	StateDelivered
	StateCleanedUp
	StateFailed
)

func (s RequestState) String() string {
	switch s {
	case StateReceived:
		return "RECEIVED"
	case StateValidated:
		return "VALIDATED"
	case StateSynthesizing:
		return "SYNTHESIZING"
	case StateArtifactValidated:
		return "ARTIFACT_VALIDATED"
	case StateDelivered:
		return "DELIVERED"
	case StateCleanedUp:
		return "CLEANED_UP"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
