package chat

// State tracks a list store's lifecycle. There is no terminal error state:
// a failed reload logs and the store keeps its last loaded value.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	}
	return "unknown"
}
