package guess

// State tracks one player's commit-reveal progress on one riddle.
type State struct {
	CommittedGuessHash string `json:"committed_guess_hash,omitempty"`
	CommittedAt        int64  `json:"committed_at,omitempty"`

	HasRevealed       bool   `json:"has_revealed"`
	RevealedGuessHash string `json:"revealed_guess_hash,omitempty"`

	IsWinner bool `json:"is_winner"`
}

type SubmitRequest struct {
	Player    string `json:"player"`
	RiddleID  int64  `json:"riddle_id"`
	GuessHash string `json:"guess_hash"`
}

type SubmitResponse struct {
	RiddleID int64 `json:"riddle_id"`
	IsWinner bool  `json:"is_winner"`
}

type RevealRequest struct {
	Player   string `json:"player"`
	RiddleID int64  `json:"riddle_id"`
	Answer   string `json:"answer"`
}

type RevealResponse struct {
	RiddleID          int64  `json:"riddle_id"`
	RevealedGuessHash string `json:"revealed_guess_hash"`
	IsWinner          bool   `json:"is_winner"`
}

type PurchaseRetryRequest struct {
	Player   string `json:"player"`
	RiddleID int64  `json:"riddle_id"`
}

type RetriesResponse struct {
	Player  string `json:"player"`
	Retries int64  `json:"retries"`
}

type StateResponse struct {
	RiddleID int64  `json:"riddle_id"`
	Player   string `json:"player"`
	State    State  `json:"state"`
}
