package domain

import (
	"github.com/sevendrop/backend/internal/entity"
	"github.com/sevendrop/backend/internal/model"
)

func convertPayout(p *entity.Payout) model.Payout {
	return model.Payout{
		ID:                p.ID,
		Kind:              string(p.Kind),
		DestinationUID:    p.DestinationUID,
		Amount:            p.Amount.String(),
		Status:            string(p.Status),
		ProviderPaymentID: p.ProviderPaymentID,
		ToAddress:         p.DestinationAddress,
		TxID:              p.TxID,
		Attempts:          p.Attempts,
		LastError:         p.LastError,
	}
}

func convertPayouts(payouts []entity.Payout) []model.Payout {
	result := []model.Payout{}
	for i := range payouts {
		result = append(result, convertPayout(&payouts[i]))
	}

	return result
}

func convertSettlement(w *entity.Winner, payouts []entity.Payout) *model.Settlement {
	return &model.Settlement{
		PeriodKey:      w.PeriodKey,
		WinnerUID:      w.UserUID,
		WinnerWallet:   w.WinnerWallet,
		EntryID:        w.EntryID,
		EntryCount:     w.EntryCount,
		Seed:           w.Seed,
		SnapshotDigest: w.SnapshotDigest,
		PotTotal:       w.PotTotal.String(),
		WinnerAmount:   w.WinnerAmount.String(),
		FeeAmount:      w.FeeAmount.String(),
		Payouts:        convertPayouts(payouts),
	}
}
