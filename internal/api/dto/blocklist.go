package dto

type BlockRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}
