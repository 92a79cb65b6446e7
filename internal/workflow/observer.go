package workflow

// Observer is told the outcome of every attempted transition.
type Observer interface {
	ObserveTransition(resource, action, outcome string)
}

// OutcomeOK is the outcome recorded for a successful transition.
const OutcomeOK = "ok"

// Outcome labels err for metrics: "ok", the error kind, or "error".
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	if we, ok := As(err); ok {
		return string(we.Kind)
	}
	return "error"
}

// NopObserver discards observations.
type NopObserver struct{}

func (NopObserver) ObserveTransition(string, string, string) {}
