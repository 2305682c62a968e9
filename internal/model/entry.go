package model

import "encoding/json"

type RegisterUserRequest struct {
	UID    string `json:"uid"`
	Wallet string `json:"wallet"`
}

type RegisterUserResponse struct{}

type GetAppDataRequest struct {
	UID string `json:"uid"`
}

type GetAppDataResponse struct {
	PotValue          string `json:"pot_value"`
	NextDropTimestamp int64  `json:"next_drop_timestamp"`
	UserEntries       int64  `json:"user_entries"`
}

type ClaimFreeEntryRequest struct {
	UID      string `json:"uid"`
	DeviceFP string `json:"device_fp"`
	Wallet   string `json:"wallet"`
}

type ClaimFreeEntryResponse struct {
	PeriodKey string `json:"period_key"`
}

type PaymentDescriptor struct {
	Amount   json.Number    `json:"amount"`
	Memo     string         `json:"memo"`
	Metadata map[string]any `json:"metadata"`
}

type PaymentMetadata struct {
	UID  string `structs:"uid"`
	Tier string `structs:"tier"`
}

type CreatePaymentRequest struct {
	UID    string `json:"uid"`
	Amount string `json:"amount"`
	Wallet string `json:"wallet"`
}

type CreatePaymentResponse struct {
	Payment PaymentDescriptor `json:"payment"`
}

type ApprovePaymentRequest struct {
	PaymentID string `json:"payment_id"`
	UID       string `json:"uid"`
}

type ApprovePaymentResponse struct{}

type CompletePaymentRequest struct {
	PaymentID string `json:"payment_id"`
	TxID      string `json:"txid"`
}

type CompletePaymentResponse struct {
	PeriodKey string `json:"period_key"`
	Entries   int    `json:"entries"`
}
