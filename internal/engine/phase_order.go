package engine

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseNight   Phase = "night"
	PhaseDay     Phase = "day"
)

// NextPhase walks waiting -> night -> day -> night -> ...
// Nothing leads back to waiting.
func NextPhase(p Phase) Phase {
	switch p {
	case PhaseNight:
		return PhaseDay
	default:
		return PhaseNight
	}
}
