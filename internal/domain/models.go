package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TypeDeposit  TransactionType = "DEPOSIT"
	TypeTransfer TransactionType = "TRANSFER"
)

type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusPending TransactionStatus = "PENDING"
	StatusFailed  TransactionStatus = "FAILED"
)

type User struct {
	ID              string          `json:"id"`
	Email           string          `json:"email"`
	Firstname       string          `json:"firstname"`
	Lastname        string          `json:"lastname"`
	Username        string          `json:"username"`
	PasswordHash    string          `json:"-"`
	Balance         decimal.Decimal `json:"balance"`
	IsVerified      bool            `json:"isVerified"`
	VerificationOTP string          `json:"-"`
	OTPExpiresAt    time.Time       `json:"-"`
	RefreshToken    string          `json:"-"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// MiniProfile is the denormalised display-only subset of a user embedded in
// transactions. The foreign-key IDs on the transaction stay authoritative.
type MiniProfile struct {
	ID        string `json:"id"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Username  string `json:"username"`
}

func (u *User) MiniProfile() *MiniProfile {
	if u == nil {
		return nil
	}
	return &MiniProfile{
		ID:        u.ID,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
		Username:  u.Username,
	}
}

// Transaction is an immutable history record. RecipientID is empty for deposits.
type Transaction struct {
	ID          string            `json:"id"`
	InitiatorID string            `json:"initiatorId"`
	RecipientID string            `json:"recipientId,omitempty"`
	Initiator   *MiniProfile      `json:"initiator,omitempty"`
	Recipient   *MiniProfile      `json:"recipient,omitempty"`
	Amount      decimal.Decimal   `json:"amount"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// TransactionFilter narrows a transaction history query. Zero values mean
// "no filter"; date bounds are inclusive and may be open-ended on either side.
type TransactionFilter struct {
	Type      TransactionType
	Status    TransactionStatus
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// TransactionPage is one page of a user's transaction history, newest first.
type TransactionPage struct {
	Items      []Transaction `json:"data"`
	TotalCount int           `json:"totalCount"`
	Page       int           `json:"page"`
	PerPage    int           `json:"perPage"`
}
