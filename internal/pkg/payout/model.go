package payout

type Result struct {
	RiddleID         int64 `json:"riddle_id"`
	Share            int64 `json:"share"`
	TotalDistributed int64 `json:"total_distributed"`
	WinnerCount      int64 `json:"winner_count"`
}
