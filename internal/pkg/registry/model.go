package registry

type PrizeType string

const (
	PrizeNative PrizeType = "native"
	PrizeToken  PrizeType = "token"
)

type Riddle struct {
	RiddleID int64 `json:"riddle_id"`

	AnswerHash string `json:"answer_hash"`

	PrizeType  PrizeType `json:"prize_type"`
	PrizeToken string    `json:"prize_token,omitempty"`
	PrizePool  int64     `json:"prize_pool"`

	EntryFeeToken string `json:"entry_fee_token"`

	PaidOut bool `json:"paid_out"`
}

type SetRiddleRequest struct {
	RiddleID int64 `json:"riddle_id"`

	AnswerHash string `json:"answer_hash"`

	PrizeType  PrizeType `json:"prize_type"`
	PrizeToken string    `json:"prize_token"`
	PrizePool  int64     `json:"prize_pool"`

	EntryFeeToken string `json:"entry_fee_token"`
}

type PaidOutResponse struct {
	RiddleID int64 `json:"riddle_id"`
	PaidOut  bool  `json:"paid_out"`
}
