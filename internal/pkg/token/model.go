package token

type MintRequest struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Amount  int64  `json:"amount"`
}

type ApproveRequest struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  int64  `json:"amount"`
}

type BalanceResponse struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}
