package state

var transitionRecorder = func(from, to string) {}

// RegisterTransitionRecorder allows external packages (metrics) to observe
// step transitions without this package importing them.
func RegisterTransitionRecorder(recorder func(from, to string)) {
	if recorder == nil {
		transitionRecorder = func(string, string) {}
		return
	}

	transitionRecorder = recorder
}
