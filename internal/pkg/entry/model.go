package entry

type EnterRequest struct {
	Player   string `json:"player"`
	RiddleID int64  `json:"riddle_id"`
}

type EnteredResponse struct {
	RiddleID int64  `json:"riddle_id"`
	Player   string `json:"player"`
	Entered  bool   `json:"entered"`
}
