package model

type DrawOutcome string

const (
	DrawSettled           DrawOutcome = "settled"
	DrawNoEligibleEntries DrawOutcome = "no_eligible_entries"
	DrawAlreadySettled    DrawOutcome = "already_settled"
	DrawPayoutPending     DrawOutcome = "payout_pending"
)

type Payout struct {
	ID                string `json:"id"`
	Kind              string `json:"kind"`
	DestinationUID    string `json:"destination_uid"`
	Amount            string `json:"amount"`
	Status            string `json:"status"`
	ProviderPaymentID string `json:"provider_payment_id,omitempty"`
	ToAddress         string `json:"to_address,omitempty"`
	TxID              string `json:"txid,omitempty"`
	Attempts          int    `json:"attempts"`
	LastError         string `json:"last_error,omitempty"`
}

type Settlement struct {
	PeriodKey      string   `json:"period_key"`
	WinnerUID      string   `json:"winner_uid"`
	WinnerWallet   string   `json:"winner_wallet,omitempty"`
	EntryID        string   `json:"entry_id"`
	EntryCount     int      `json:"entry_count"`
	Seed           string   `json:"seed"`
	SnapshotDigest string   `json:"snapshot_digest"`
	PotTotal       string   `json:"pot_total"`
	WinnerAmount   string   `json:"winner_amount"`
	FeeAmount      string   `json:"fee_amount"`
	Payouts        []Payout `json:"payouts"`
}

type GetPotRequest struct {
	PeriodKey string `json:"period_key"`
}

type GetPotResponse struct {
	PeriodKey string `json:"period_key"`
	Pot       string `json:"pot"`
}

type RunDrawRequest struct {
	PeriodKey string `json:"period_key"`
}

type RunDrawResponse struct {
	Outcome    DrawOutcome `json:"outcome"`
	Settlement *Settlement `json:"settlement,omitempty"`

	// PayoutError describes why a payout is still pending.
	PayoutError string `json:"payout_error,omitempty"`
}

type GetSettlementRequest struct {
	PeriodKey string `json:"period_key"`
}

type GetSettlementResponse struct {
	PeriodStatus string      `json:"period_status"`
	Settlement   *Settlement `json:"settlement,omitempty"`
}

type RetryPayoutsRequest struct {
	PeriodKey string `json:"period_key"`
}

type RetryPayoutsResponse struct {
	Payouts []Payout `json:"payouts"`
}

type ResetPeriodRequest struct {
	PeriodKey string `json:"period_key"`
}

type ResetPeriodResponse struct {
	PeriodKey     string `json:"period_key"`
	ArchivedTotal string `json:"archived_total"`
}

type PayoutMetadata struct {
	PayoutID  string `structs:"payout_id"`
	PeriodKey string `structs:"period_key"`
	Kind      string `structs:"kind"`
}

// SettlementEvent is published to the settlement topic whenever a draw or a
// payout changes state.
type SettlementEvent struct {
	Type       string      `json:"type"`
	PeriodKey  string      `json:"period_key"`
	Settlement *Settlement `json:"settlement,omitempty"`
	Payout     *Payout     `json:"payout,omitempty"`
}
