package keyedpager

// Status is the pager's coarse lifecycle state. It only ever moves forward:
// Empty to Loading (or LoadingMore when seeded entries already populate the
// window) on the first initialization, then Success once the initial tasks
// settle. Later page loads cycle between Success and LoadingMore.
type Status uint8

const (
	// StatusEmpty means the pager has not been initialized yet.
	StatusEmpty Status = iota
	// StatusLoading means the first load is in flight and the window is empty.
	StatusLoading
	// StatusLoadingMore means a further page is in flight while the window
	// already holds items.
	StatusLoadingMore
	// StatusSuccess means the last load settled and the window is consistent.
	StatusSuccess
	// StatusError exists for consumers that surface source failures as a
	// terminal state. The pager itself never sets it: a failed fetch is
	// returned to the caller instead of being absorbed.
	StatusError
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusLoading:
		return "loading"
	case StatusLoadingMore:
		return "loading-more"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
