package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// UnassignedIndex marks a loan that holds no physical slot.
	UnassignedIndex = -1
	MinSlotIndex    = 1
	MaxSlotIndex    = 84
)

type LoanType string

const (
	LoanTypeDaily   LoanType = "daily"
	LoanTypeMonthly LoanType = "monthly"
	LoanTypePending LoanType = "pending"
)

// Valid reports whether t is one of the known loan types.
func (t LoanType) Valid() bool {
	switch t {
	case LoanTypeDaily, LoanTypeMonthly, LoanTypePending:
		return true
	}
	return false
}

type Loan struct {
	ID                uuid.UUID       `json:"id"`
	AccountNo         string          `json:"accountNo"`
	CustomerKey       string          `json:"customerKey"` // Link to external customer system
	Index             int             `json:"index"`       // Physical slot, -1 when unassigned
	Order             int             `json:"order"`
	LoanType          LoanType        `json:"loanType"`
	InstallmentAmount decimal.Decimal `json:"installmentAmount"`
	ReceivedAmount    decimal.Decimal `json:"receivedAmount"`
	LateAmount        decimal.Decimal `json:"lateAmount"`
	TotalToBePaid     decimal.Decimal `json:"totalToBePaid"` // Only meaningful for pending loans
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// HasSlot reports whether the loan currently occupies a valid slot.
func (l *Loan) HasSlot() bool {
	return l.Index >= MinSlotIndex && l.Index <= MaxSlotIndex
}

type Payment struct {
	ID         uuid.UUID       `json:"id"`
	AccountNo  string          `json:"accountNo"`
	Amount     decimal.Decimal `json:"amount"`
	LateAmount decimal.Decimal `json:"lateAmount"`
	Date       time.Time       `json:"date"`
	CreatedAt  time.Time       `json:"createdAt"`
}
