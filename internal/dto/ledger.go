package dto

type SessionRequestDTO struct {
	ClientID string `json:"client_id" example:"teller-1"`
	Password string `json:"password" example:"s3cret"`
}

type SessionResponseDTO struct {
	Token string `json:"token"`
}

type CreateAccountRequestDTO struct {
	Timestamp int64  `json:"timestamp" example:"1"`
	AccountID string `json:"account_id" example:"acc-42"`
}

type DepositRequestDTO struct {
	Timestamp int64 `json:"timestamp" example:"2"`
	Amount    int64 `json:"amount" example:"500"`
}

type TransferRequestDTO struct {
	Timestamp int64  `json:"timestamp" example:"3"`
	SourceID  string `json:"source_id" example:"acc-42"`
	TargetID  string `json:"target_id" example:"acc-43"`
	Amount    int64  `json:"amount" example:"200"`
}

type BalanceResponseDTO struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
}

type SchedulePaymentRequestDTO struct {
	Timestamp int64 `json:"timestamp" example:"4"`
	Amount    int64 `json:"amount" example:"100"`
	Delay     int64 `json:"delay" example:"10"`
}

type SchedulePaymentResponseDTO struct {
	PaymentID string `json:"payment_id" example:"payment1"`
}

type MergeAccountsRequestDTO struct {
	Timestamp int64  `json:"timestamp" example:"5"`
	AccountID string `json:"account_id" example:"acc-42"`
	MergeID   string `json:"merge_id" example:"acc-43"`
}

type TopSpendersResponseDTO struct {
	Spenders []string `json:"spenders"`
}
