package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// StakeVault wraps the staking vault contract that custodies meeting stakes.
// Token custody and the actual refund/forfeit transfers happen on-chain,
// outside this backend; this wrapper only exposes the read-only views the
// API surfaces (total staked per vault, per-wallet balance).
type StakeVault struct {
	client  *ethclient.Client
	address common.Address
	abi     abi.ABI
}

// NewStakeVault creates a StakeVault bound to a deployed vault address.
func NewStakeVault(client *ethclient.Client, address string) (*StakeVault, error) {
	// Only the view functions this backend reads
	vaultABI := `[
		{"inputs":[],"name":"totalStaked","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
		{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
	]`

	parsedABI, err := abi.JSON(strings.NewReader(vaultABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault ABI: %w", err)
	}

	return &StakeVault{
		client:  client,
		address: common.HexToAddress(address),
		abi:     parsedABI,
	}, nil
}

// TotalStaked calls the totalStaked() view function on the vault contract.
func (v *StakeVault) TotalStaked(ctx context.Context) (*big.Int, error) {
	return v.callUint256(ctx, "totalStaked")
}

// BalanceOf calls balanceOf(account) for a wallet address.
func (v *StakeVault) BalanceOf(ctx context.Context, walletAddress string) (*big.Int, error) {
	return v.callUint256(ctx, "balanceOf", common.HexToAddress(walletAddress))
}

func (v *StakeVault) callUint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	callData, err := v.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack call data: %w", err)
	}

	result, err := v.client.CallContract(ctx, ethereum.CallMsg{
		To:   &v.address,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", method, err)
	}

	var value *big.Int
	err = v.abi.UnpackIntoInterface(&value, method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	return value, nil
}
