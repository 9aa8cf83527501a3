package payment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/Tanner253/ClubPengu-sub005/internal/adapter"
	"github.com/Tanner253/ClubPengu-sub005/internal/domain"
	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
)

var (
	// transferTopic is keccak256("Transfer(address,address,uint256)")
	transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	// balanceOfSelector is the first four bytes of keccak256("balanceOf(address)")
	balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

// Config holds timing bounds for the on-chain verifier
type Config struct {
	// VerifyTimeout bounds one whole verification, including receipt polling
	VerifyTimeout time.Duration
	// ReceiptPollInterval is the initial backoff interval while the
	// transaction is not yet mined
	ReceiptPollInterval time.Duration
}

type ethVerifier struct {
	client adapter.EthClient
	config Config
}

// NewEthVerifier creates a Verifier backed by an Ethereum RPC client
func NewEthVerifier(client adapter.EthClient, config Config) Verifier {
	if config.VerifyTimeout == 0 {
		config.VerifyTimeout = 30 * time.Second
	}
	if config.ReceiptPollInterval == 0 {
		config.ReceiptPollInterval = time.Second
	}
	return &ethVerifier{client: client, config: config}
}

// VerifyPayment confirms the transaction transfers exactly amount of the token
// from fromWallet to toWallet. The receipt is polled with backoff because a
// just-submitted transaction may not be mined on the first attempt.
func (v *ethVerifier) VerifyPayment(ctx context.Context, signature, fromWallet, toWallet, tokenAddress string, amount uint64, tags AuditTags) (*Receipt, error) {
	fields := []zap.Field{
		zap.String("signature", signature),
		zap.String("from", fromWallet),
		zap.String("to", toWallet),
		zap.String("token", tokenAddress),
		zap.Uint64("amount", amount),
		zap.String("space_id", tags.SpaceID),
		zap.String("kind", tags.Kind),
		zap.Bool("is_renewal", tags.IsRenewal),
	}

	ctx, cancel := context.WithTimeout(ctx, v.config.VerifyTimeout)
	defer cancel()

	receipt, err := v.waitForReceipt(ctx, common.HexToHash(signature))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.WarnCtx(ctx, "payment verification timed out", fields...)
			return nil, domain.ErrVerificationTimeout
		}
		logger.ErrorCtx(ctx, fmt.Errorf("failed to fetch payment receipt: %w", err), fields...)
		return nil, fmt.Errorf("%w: %v", domain.ErrVerificationFailed, err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		logger.WarnCtx(ctx, "payment transaction reverted", fields...)
		return nil, fmt.Errorf("%w: transaction reverted", domain.ErrVerificationFailed)
	}

	if !matchesTransfer(receipt, fromWallet, toWallet, tokenAddress, amount) {
		logger.WarnCtx(ctx, "payment transfer does not match expected parties or amount", fields...)
		return nil, fmt.Errorf("%w: no matching transfer in transaction", domain.ErrVerificationFailed)
	}

	logger.InfoCtx(ctx, "payment verified", fields...)
	return &Receipt{TransactionHash: receipt.TxHash.Hex()}, nil
}

// CheckMinimumBalance reads the ERC-20 balance of the wallet
func (v *ethVerifier) CheckMinimumBalance(ctx context.Context, wallet, tokenAddress string, minimum uint64) (*BalanceCheck, error) {
	ctx, cancel := context.WithTimeout(ctx, v.config.VerifyTimeout)
	defer cancel()

	token := common.HexToAddress(tokenAddress)
	calldata := append(append([]byte{}, balanceOfSelector...),
		common.LeftPadBytes(common.HexToAddress(wallet).Bytes(), 32)...)

	out, err := v.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: calldata}, nil)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("balance lookup failed: %w", err),
			zap.String("wallet", wallet),
			zap.String("token", tokenAddress),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrBalanceLookup, err)
	}

	balance := new(big.Int).SetBytes(out)
	if !balance.IsUint64() {
		// Balances beyond uint64 trivially clear any configured minimum
		return &BalanceCheck{HasBalance: true, Balance: ^uint64(0)}, nil
	}

	return &BalanceCheck{
		HasBalance: balance.Uint64() >= minimum,
		Balance:    balance.Uint64(),
	}, nil
}

// waitForReceipt polls for the transaction receipt until the context deadline
func (v *ethVerifier) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = v.config.ReceiptPollInterval
	policy.MaxInterval = 5 * v.config.ReceiptPollInterval

	err := backoff.Retry(func() error {
		var err error
		receipt, err = v.client.TransactionReceipt(ctx, txHash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return err // retry, not mined yet
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	return receipt, nil
}

// matchesTransfer scans the receipt logs for an ERC-20 Transfer event with the
// exact expected token, parties, and amount.
func matchesTransfer(receipt *types.Receipt, from, to, token string, amount uint64) bool {
	fromAddr := common.HexToAddress(from)
	toAddr := common.HexToAddress(to)
	tokenAddr := common.HexToAddress(token)
	want := new(big.Int).SetUint64(amount)

	for _, log := range receipt.Logs {
		if log.Address != tokenAddr || len(log.Topics) != 3 || log.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(log.Topics[1].Bytes()) != fromAddr {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != toAddr {
			continue
		}
		if new(big.Int).SetBytes(log.Data).Cmp(want) == 0 {
			return true
		}
	}
	return false
}
