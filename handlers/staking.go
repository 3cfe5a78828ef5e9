package handlers

import (
	"errors"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"meetstake-backend/contracts"
	"meetstake-backend/models"
	"meetstake-backend/staking"
)

type StakingHandler struct {
	manager *staking.Manager
	vault   *contracts.StakeVault
}

// NewStakingHandler creates the handler for the meeting staking lifecycle.
// vault may be nil when no chain endpoint is configured; on-chain
// cross-checks are then skipped.
func NewStakingHandler(manager *staking.Manager, vault *contracts.StakeVault) *StakingHandler {
	return &StakingHandler{
		manager: manager,
		vault:   vault,
	}
}

func (h *StakingHandler) CreateMeeting(c *gin.Context) {
	var req models.CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requiredStake, ok := new(big.Int).SetString(req.RequiredStake, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "required_stake must be a base-10 integer amount"})
		return
	}

	log.Printf("Creating staked meeting %s (event %s, organizer %s)", req.MeetingID, req.EventID, req.Organizer)

	meetingID, err := h.manager.CreateStakedMeeting(c, req.MeetingID, req.EventID, req.Organizer, requiredStake, req.StartTime, req.EndTime)
	if err != nil {
		writeStakingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"meeting_id":     meetingID,
		"required_stake": requiredStake.String(),
	})
}

func (h *StakingHandler) Stake(c *gin.Context) {
	meetingID := c.Param("id")

	var req models.StakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a base-10 integer amount"})
		return
	}

	log.Printf("Stake request: meeting=%s wallet=%s amount=%s", meetingID, req.WalletAddress, amount.String())

	if err := h.manager.Stake(c, meetingID, req.WalletAddress, amount); err != nil {
		writeStakingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":        "Successfully staked for meeting",
		"meeting_id":     meetingID,
		"wallet_address": req.WalletAddress,
		"amount":         amount.String(),
	})
}

func (h *StakingHandler) GenerateCode(c *gin.Context) {
	h.generateCode(c, false)
}

func (h *StakingHandler) RegenerateCode(c *gin.Context) {
	h.generateCode(c, true)
}

func (h *StakingHandler) generateCode(c *gin.Context, regenerate bool) {
	meetingID := c.Param("id")

	var req models.GenerateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var code string
	var validUntil time.Time
	var err error
	if regenerate {
		code, validUntil, err = h.manager.RegenerateCode(c, meetingID, req.OrganizerAddress)
	} else {
		code, validUntil, err = h.manager.GenerateCode(c, meetingID, req.OrganizerAddress)
	}
	if err != nil {
		writeStakingError(c, err)
		return
	}

	log.Printf("Attendance code issued for meeting %s (regenerate=%v)", meetingID, regenerate)

	c.JSON(http.StatusOK, gin.H{
		"meeting_id":  meetingID,
		"code":        code,
		"valid_until": validUntil.UTC(),
	})
}

func (h *StakingHandler) SubmitCode(c *gin.Context) {
	meetingID := c.Param("id")

	var req models.SubmitCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	log.Printf("Check-in attempt: meeting=%s wallet=%s", meetingID, req.WalletAddress)

	if err := h.manager.SubmitCode(c, meetingID, req.WalletAddress, req.Code); err != nil {
		writeStakingError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "Successfully checked in",
		"meeting_id":     meetingID,
		"wallet_address": req.WalletAddress,
	})
}

func (h *StakingHandler) Settle(c *gin.Context) {
	meetingID := c.Param("id")

	result, err := h.manager.Settle(c, meetingID)
	if err != nil {
		writeStakingError(c, err)
		return
	}

	// The actual refund/forfeit transfers are the token-transfer
	// collaborator's leg; the computed split is everything it needs.
	log.Printf("Meeting %s settled: refunded=%s (%d wallets), forfeited=%s (%d wallets)",
		meetingID, result.RefundedTotal.String(), result.RefundedCount,
		result.ForfeitedTotal.String(), result.ForfeitedCount)

	c.JSON(http.StatusOK, gin.H{
		"meeting_id":        meetingID,
		"refunded_total":    result.RefundedTotal.String(),
		"forfeited_total":   result.ForfeitedTotal.String(),
		"refunded_count":    result.RefundedCount,
		"forfeited_count":   result.ForfeitedCount,
		"refunded_wallets":  result.RefundedWallets,
		"forfeited_wallets": result.ForfeitedWallets,
	})
}

func (h *StakingHandler) GetMeeting(c *gin.Context) {
	meetingID := c.Param("id")
	walletAddress := c.Query("wallet")

	view, err := h.manager.Status(c, meetingID, walletAddress)
	if err != nil {
		writeStakingError(c, err)
		return
	}

	// Cross-check the ledger total against the vault when a chain
	// endpoint is configured; display only, never authoritative.
	if h.vault != nil {
		if onchain, err := h.vault.TotalStaked(c); err == nil {
			c.JSON(http.StatusOK, gin.H{
				"meeting":            view,
				"vault_total_staked": onchain.String(),
			})
			return
		} else {
			log.Printf("Failed to read vault total for meeting %s: %v", meetingID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"meeting": view})
}

// writeStakingError maps the core's typed errors onto HTTP statuses. The
// body keeps invalid-code and expired-code distinct, and precondition
// failures carry the computed deadline for "try again after X" messaging.
func writeStakingError(c *gin.Context, err error) {
	var validationErr *staking.ValidationError
	var preconditionErr *staking.PreconditionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &preconditionErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":    preconditionErr.Error(),
			"deadline": preconditionErr.Deadline.UTC(),
		})
	case errors.Is(err, staking.ErrMeetingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
	case errors.Is(err, staking.ErrNotStaked):
		c.JSON(http.StatusNotFound, gin.H{"error": "No stake found for this wallet"})
	case errors.Is(err, staking.ErrNotOrganizer):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, staking.ErrMeetingExists),
		errors.Is(err, staking.ErrAlreadyStaked),
		errors.Is(err, staking.ErrAlreadyCheckedIn),
		errors.Is(err, staking.ErrAlreadySettled):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, staking.ErrInvalidCode):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Invalid attendance code", "code_status": "invalid"})
	case errors.Is(err, staking.ErrCodeExpired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Attendance code has expired", "code_status": "expired"})
	case errors.Is(err, staking.ErrCodeNotGenerated):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Attendance code has not been generated yet", "code_status": "not_generated"})
	default:
		log.Printf("Unexpected staking error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
