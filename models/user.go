package models

import (
	"github.com/google/uuid"
)

// Profile is a wallet-keyed display profile consulted by the calendar layer.
type Profile struct {
	ID            uuid.UUID `json:"id" db:"id"`
	WalletAddress string    `json:"wallet_address" db:"wallet_address"`
	Name          *string   `json:"name" db:"name"`
	Email         *string   `json:"email" db:"email"`
	Balance       string    `json:"balance"` // Read from the vault contract, not stored in DB
}

type CreateProfileRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required"`
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email"`
}

type UpdateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
