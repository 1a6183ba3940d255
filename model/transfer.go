package model

import (
	"encoding/json"
	"time"
)

// DelegationState tracks the handoff of a transfer's settlement authority
// to an external accelerator.
type DelegationState string

const (
	DelegationNone        DelegationState = "NONE"
	DelegationDelegated   DelegationState = "DELEGATED"
	DelegationCommitted   DelegationState = "COMMITTED"
	DelegationUndelegated DelegationState = "UNDELEGATED"
	DelegationIntegrated  DelegationState = "INTEGRATED"
)

// CanTransitionTo reports whether next is a legal successor of s.
// The only legal walk is NONE -> DELEGATED -> COMMITTED, after which the
// transfer either returns via UNDELEGATED or finalizes as INTEGRATED.
// UNDELEGATED and INTEGRATED are terminal.
func (s DelegationState) CanTransitionTo(next DelegationState) bool {
	switch s {
	case DelegationNone:
		return next == DelegationDelegated
	case DelegationDelegated:
		return next == DelegationCommitted
	case DelegationCommitted:
		return next == DelegationUndelegated || next == DelegationIntegrated
	default:
		return false
	}
}

// Transfer is one value movement attempt. The split fields (NetAmount,
// TreasuryFee, ReferralFee) are computed once at creation and never
// re-derived. ReplayNonce is caller supplied and unique per sender.
type Transfer struct {
	ID              int64                  `json:"-"`
	TransferID      string                 `json:"transfer_id"`
	EntryID         string                 `json:"entry_id"`
	Sender          string                 `json:"sender"`
	Recipient       string                 `json:"recipient"`
	Referral        string                 `json:"referral"`
	GrossAmount     uint64                 `json:"gross_amount"`
	NetAmount       uint64                 `json:"net_amount"`
	TreasuryFee     uint64                 `json:"treasury_fee"`
	ReferralFee     uint64                 `json:"referral_fee"`
	ReplayNonce     uint64                 `json:"replay_nonce"`
	Completed       bool                   `json:"completed"`
	DelegationState DelegationState        `json:"delegation_state"`
	MetaData        map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

func (t *Transfer) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// ReferralReward is the accrued, not yet collected referral fee total for
// one (entry, referral) pair.
type ReferralReward struct {
	EntryID   string    `json:"entry_id"`
	Referral  string    `json:"referral"`
	Accrued   uint64    `json:"accrued"`
	UpdatedAt time.Time `json:"updated_at"`
}
