package gallery

// State is the lifecycle position of an item within one run.
type State string

const (
	StateListed           State = "listed"
	StateDownloading      State = "downloading"
	StateDownloaded       State = "downloaded"
	StateClassifying      State = "classifying"
	StateClassified       State = "classified"
	StateFiltered         State = "filtered"
	StateDownloadFailed   State = "download_failed"
	StateClassifyFailed   State = "classify_failed"
	StateClassifyTimedOut State = "classify_timed_out"
)

var transitions = map[State][]State{
	StateListed:      {StateDownloading, StateFiltered, StateDownloadFailed},
	StateDownloading: {StateDownloaded, StateFiltered, StateDownloadFailed},
	StateDownloaded:  {StateClassifying, StateClassifyFailed},
	StateClassifying: {StateClassified, StateClassifyFailed, StateClassifyTimedOut},
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Failed reports whether the state is a terminal failure.
func (s State) Failed() bool {
	switch s {
	case StateDownloadFailed, StateClassifyFailed, StateClassifyTimedOut:
		return true
	default:
		return false
	}
}

// CanAdvance reports whether from -> to is a legal lifecycle step.
func CanAdvance(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
