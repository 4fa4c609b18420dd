package http

import (
	"time"

	"buste/internal/core"
	"buste/internal/services"
)

// Amounts cross the wire as decimal strings so nothing is ever rounded by a
// float representation.

type balanceResponse struct {
	Cleared     string `json:"cleared"`
	WithPending string `json:"with_pending"`
}

func toBalanceResponse(b core.Balance) balanceResponse {
	return balanceResponse{
		Cleared:     b.Cleared.String(),
		WithPending: b.WithPending.String(),
	}
}

type walletResponse struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	OpeningAmount string           `json:"opening_amount"`
	Balance       *balanceResponse `json:"balance,omitempty"`
}

func toWalletResponse(w core.Wallet, balance *core.Balance) walletResponse {
	resp := walletResponse{
		ID:            w.ID,
		Name:          w.Name,
		OpeningAmount: w.OpeningAmount.String(),
	}
	if balance != nil {
		b := toBalanceResponse(*balance)
		resp.Balance = &b
	}
	return resp
}

type fundResponse struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	OpeningAmount  string           `json:"opening_amount"`
	PullPercentage string           `json:"pull_percentage"`
	IsSavings      bool             `json:"is_savings"`
	Balance        *balanceResponse `json:"balance,omitempty"`
	RawBalance     *balanceResponse `json:"raw_balance,omitempty"`
}

func toFundResponse(f core.Fund) fundResponse {
	return fundResponse{
		ID:             f.ID,
		Name:           f.Name,
		OpeningAmount:  f.OpeningAmount.String(),
		PullPercentage: f.PullPercentage.String(),
		IsSavings:      f.IsSavings,
	}
}

// toFundBalanceResponse exposes the displayed balance as the balance and
// keeps the ledger-true raw next to it, so a client can render "0, overspent
// by 12.50".
func toFundBalanceResponse(fb core.FundBalance) fundResponse {
	resp := toFundResponse(fb.Fund)
	displayed := toBalanceResponse(fb.Displayed)
	raw := toBalanceResponse(fb.Raw)
	resp.Balance = &displayed
	resp.RawBalance = &raw
	return resp
}

type lineResponse struct {
	ID         int64   `json:"id"`
	Kind       string  `json:"kind"`
	Amount     string  `json:"amount"`
	WalletID   *int64  `json:"wallet_id,omitempty"`
	FundID     *int64  `json:"fund_id,omitempty"`
	IncomePull *string `json:"income_pull,omitempty"`
	Pending    bool    `json:"pending"`
}

type eventResponse struct {
	ID          int64          `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Description string         `json:"description"`
	Pending     bool           `json:"pending"`
	Income      bool           `json:"income"`
	Lines       []lineResponse `json:"lines"`
}

func toEventResponse(ev core.Event) eventResponse {
	lines := make([]lineResponse, 0, len(ev.Lines()))
	for _, p := range ev.Lines() {
		line := lineResponse{
			ID:       p.ID,
			Kind:     string(p.Kind),
			Amount:   p.Amount.String(),
			WalletID: p.WalletID,
			FundID:   p.FundID,
			Pending:  p.Pending,
		}
		if p.IncomePull != nil {
			pull := p.IncomePull.String()
			line.IncomePull = &pull
		}
		lines = append(lines, line)
	}
	return eventResponse{
		ID:          ev.Root.ID,
		OccurredAt:  ev.Root.OccurredAt,
		Description: ev.Root.Description,
		Pending:     ev.Root.Pending,
		Income:      ev.IsIncome(),
		Lines:       lines,
	}
}

type summaryResponse struct {
	Total   balanceResponse  `json:"total"`
	Wallets []walletResponse `json:"wallets"`
	Funds   []fundResponse   `json:"funds"`
}

func toSummaryResponse(sum services.Summary) summaryResponse {
	resp := summaryResponse{
		Total:   toBalanceResponse(sum.Total),
		Wallets: make([]walletResponse, 0, len(sum.Wallets)),
		Funds:   make([]fundResponse, 0, len(sum.Funds)),
	}
	for _, wb := range sum.Wallets {
		raw := wb.Raw
		resp.Wallets = append(resp.Wallets, toWalletResponse(wb.Wallet, &raw))
	}
	for _, fb := range sum.Funds {
		resp.Funds = append(resp.Funds, toFundBalanceResponse(fb))
	}
	return resp
}
