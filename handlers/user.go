package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meetstake-backend/contracts"
	"meetstake-backend/models"
)

type UserHandler struct {
	db    *pgxpool.Pool
	vault *contracts.StakeVault
}

func NewUserHandler(db *pgxpool.Pool, vault *contracts.StakeVault) *UserHandler {
	return &UserHandler{
		db:    db,
		vault: vault,
	}
}

func (h *UserHandler) CreateProfile(c *gin.Context) {
	var req models.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var exists bool
	err := h.db.QueryRow(c, "SELECT EXISTS(SELECT 1 FROM profiles WHERE wallet_address = $1)", req.WalletAddress).Scan(&exists)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check if profile exists: " + err.Error()})
		return
	}

	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "Profile already exists"})
		return
	}

	query := `
		INSERT INTO profiles (id, wallet_address, name, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, wallet_address, name, email
	`

	var profile models.Profile
	err = h.db.QueryRow(c, query,
		uuid.New(),
		req.WalletAddress,
		req.Name,
		nullIfEmpty(req.Email),
	).Scan(
		&profile.ID,
		&profile.WalletAddress,
		&profile.Name,
		&profile.Email,
	)

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create profile: " + err.Error()})
		return
	}

	profile.Balance = h.vaultBalance(c, profile.WalletAddress)

	c.JSON(http.StatusCreated, profile)
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	walletAddress := c.Param("walletAddress")

	var profile models.Profile
	query := `
		SELECT id, wallet_address, name, email
		FROM profiles
		WHERE wallet_address = $1
	`

	err := h.db.QueryRow(c, query, walletAddress).Scan(
		&profile.ID,
		&profile.WalletAddress,
		&profile.Name,
		&profile.Email,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
			return
		}
		log.Printf("Database error getting profile for %s: %v", walletAddress, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	profile.Balance = h.vaultBalance(c, walletAddress)

	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	walletAddress := c.Param("walletAddress")

	var req models.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := `
		UPDATE profiles
		SET name = COALESCE($2, name),
		    email = COALESCE($3, email)
		WHERE wallet_address = $1
		RETURNING id, wallet_address, name, email
	`

	var profile models.Profile
	err := h.db.QueryRow(c, query,
		walletAddress,
		nullIfEmpty(req.Name),
		nullIfEmpty(req.Email),
	).Scan(
		&profile.ID,
		&profile.WalletAddress,
		&profile.Name,
		&profile.Email,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile: " + err.Error()})
		return
	}

	profile.Balance = h.vaultBalance(c, walletAddress)

	c.JSON(http.StatusOK, profile)
}

func (h *UserHandler) UpsertProfile(c *gin.Context) {
	var req models.CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := `
		INSERT INTO profiles (id, wallet_address, name, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (wallet_address) DO UPDATE SET
			name = EXCLUDED.name,
			email = COALESCE(EXCLUDED.email, profiles.email)
		RETURNING id, wallet_address, name, email
	`

	var profile models.Profile
	err := h.db.QueryRow(c, query,
		uuid.New(),
		req.WalletAddress,
		req.Name,
		nullIfEmpty(req.Email),
	).Scan(
		&profile.ID,
		&profile.WalletAddress,
		&profile.Name,
		&profile.Email,
	)

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upsert profile: " + err.Error()})
		return
	}

	profile.Balance = h.vaultBalance(c, profile.WalletAddress)

	c.JSON(http.StatusOK, profile)
}

// vaultBalance reads the wallet's staked balance from the vault contract.
// Best effort: profiles still render when no chain endpoint is configured.
func (h *UserHandler) vaultBalance(c *gin.Context, walletAddress string) string {
	if h.vault == nil {
		return "0"
	}
	balance, err := h.vault.BalanceOf(c, walletAddress)
	if err != nil {
		log.Printf("Failed to read vault balance for %s: %v", walletAddress, err)
		return "0"
	}
	return balance.String()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
