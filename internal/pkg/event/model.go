package event

const (
	RiddleConfigured  = "RiddleConfigured"
	PlayerEntered     = "PlayerEntered"
	EntryFeeCollected = "EntryFeeCollected"
	GuessSubmitted    = "GuessSubmitted"
	GuessEvaluated    = "GuessEvaluated"
	WinnerFound       = "WinnerFound"
	RiddlePayout      = "RiddlePayout"
)

// Event is the single payload shape for every game notification. Fields
// that don't apply to a given event name stay at their zero value.
type Event struct {
	Name string `json:"name"`

	RiddleID int64  `json:"riddle_id,omitempty"`
	Player   string `json:"player,omitempty"`

	Token  string `json:"token,omitempty"`
	Amount int64  `json:"amount,omitempty"`

	GuessHash string `json:"guess_hash,omitempty"`
	Correct   *bool  `json:"correct,omitempty"`

	TotalDistributed int64 `json:"total_distributed,omitempty"`
	WinnerCount      int64 `json:"winner_count,omitempty"`

	Timestamp int64 `json:"timestamp"`
}
