package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/pkg/metrics"
	"github.com/birdeye-sniper/sniper_service/pkg/tracing"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultConfirmTimeout = 60 * time.Second
	confirmPollInterval   = 2 * time.Second
	tracerName            = "ledger"
)

// Config represents Solana RPC configuration
type Config struct {
	RPCURL         string
	Commitment     string // processed, confirmed or finalized
	Address        string // the bot wallet
	PrivateKey     string // optional, enables sending from Address
	HeliusAPIKey   string
	HeliusURL      string
	Timeout        time.Duration
	ConfirmTimeout time.Duration
}

// rpcAPI is the subset of the solana-go RPC client used here
type rpcAPI interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// SolanaClient talks to a Solana RPC node and, optionally, the Helius enhanced API
type SolanaClient struct {
	config         Config
	rpc            rpcAPI
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	commitment     rpc.CommitmentType
	botAddress     solana.PublicKey
	logger         *zap.Logger

	mu      sync.RWMutex
	signers map[solana.PublicKey]solana.PrivateKey
}

// NewSolanaClient creates a new Solana client
func NewSolanaClient(config Config, logger *zap.Logger) (*SolanaClient, error) {
	return newSolanaClient(config, rpc.New(config.RPCURL), logger)
}

func newSolanaClient(config Config, api rpcAPI, logger *zap.Logger) (*SolanaClient, error) {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.ConfirmTimeout == 0 {
		config.ConfirmTimeout = defaultConfirmTimeout
	}
	if config.Commitment == "" {
		config.Commitment = string(rpc.CommitmentConfirmed)
	}
	config.HeliusURL = strings.TrimRight(config.HeliusURL, "/")

	botAddress, err := solana.PublicKeyFromBase58(strings.TrimSpace(config.Address))
	if err != nil {
		return nil, fmt.Errorf("invalid bot address: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "SolanaRPC",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	c := &SolanaClient{
		config:         config,
		rpc:            api,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(st),
		commitment:     rpc.CommitmentType(config.Commitment),
		botAddress:     botAddress,
		logger:         logger,
		signers:        make(map[solana.PublicKey]solana.PrivateKey),
	}

	if strings.TrimSpace(config.PrivateKey) == "" {
		logger.Warn("No private key configured, outgoing transfers are disabled")
		return c, nil
	}

	key, err := ParsePrivateKey(config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if !key.PublicKey().Equals(botAddress) {
		logger.Warn("Private key does not match the configured bot address",
			zap.String("address", botAddress.String()),
			zap.String("key_address", key.PublicKey().String()))
	}
	c.AddSigner(key)

	return c, nil
}

// AddSigner registers a keypair that may send from its own address
func (c *SolanaClient) AddSigner(key solana.PrivateKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signers[key.PublicKey()] = key
}

// CanSign reports whether a keypair is registered for address
func (c *SolanaClient) CanSign(address string) bool {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.signers[pk]
	return ok
}

// BotAddress returns the shared bot wallet address
func (c *SolanaClient) BotAddress() string {
	return c.botAddress.String()
}

// IsValidAddress reports whether address is a well formed public key
func (c *SolanaClient) IsValidAddress(address string) bool {
	return IsValidAddress(address)
}

// GetBalance returns the balance of address in SOL
func (c *SolanaClient) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return decimal.Zero, domainerrors.InvalidAddressError(address)
	}

	var lamports uint64
	err = c.call(ctx, "getBalance", func(ctx context.Context) error {
		res, err := c.rpc.GetBalance(ctx, pk, c.commitment)
		if err != nil {
			return err
		}
		lamports = res.Value
		return nil
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance for %s: %w", address, err)
	}

	return LamportsToSOL(lamports), nil
}

// Ping measures a getSlot round trip
func (c *SolanaClient) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := c.call(ctx, "getSlot", func(ctx context.Context) error {
		_, err := c.rpc.GetSlot(ctx, c.commitment)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reach solana rpc: %w", err)
	}
	return time.Since(start), nil
}

// GetRecentTransactions returns up to limit signatures for address, newest first
func (c *SolanaClient) GetRecentTransactions(ctx context.Context, address string, limit int) ([]entities.LedgerTransaction, error) {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return nil, domainerrors.InvalidAddressError(address)
	}

	var sigs []*rpc.TransactionSignature
	err = c.call(ctx, "getSignaturesForAddress", func(ctx context.Context) error {
		var err error
		sigs, err = c.rpc.GetSignaturesForAddressWithOpts(ctx, pk, &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: c.commitment,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures for %s: %w", address, err)
	}

	txs := make([]entities.LedgerTransaction, 0, len(sigs))
	for _, sig := range sigs {
		if sig == nil {
			continue
		}
		tx := entities.LedgerTransaction{
			Signature: sig.Signature.String(),
			Slot:      sig.Slot,
			Failed:    sig.Err != nil,
		}
		if sig.BlockTime != nil {
			t := sig.BlockTime.Time()
			tx.BlockTime = &t
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// GetTransactionDetails fetches fee and timestamp for signature, preferring Helius when configured
func (c *SolanaClient) GetTransactionDetails(ctx context.Context, signature string) (*entities.TransactionDetails, error) {
	if c.config.HeliusAPIKey != "" {
		details, err := c.heliusTransaction(ctx, signature)
		if err == nil {
			return details, nil
		}
		c.logger.Warn("Helius lookup failed, falling back to rpc",
			zap.String("signature", signature),
			zap.Error(err))
	}
	return c.rpcTransaction(ctx, signature)
}

func (c *SolanaClient) rpcTransaction(ctx context.Context, signature string) (*entities.TransactionDetails, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, domainerrors.ValidationError("signature", "invalid signature "+signature)
	}

	var res *rpc.GetTransactionResult
	maxVersion := uint64(0)
	err = c.call(ctx, "getTransaction", func(ctx context.Context) error {
		var err error
		res, err = c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Commitment:                     c.commitment,
			MaxSupportedTransactionVersion: &maxVersion,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", signature, err)
	}
	if res == nil {
		return nil, domainerrors.NotFoundError("transaction")
	}

	details := &entities.TransactionDetails{Signature: signature}
	if res.Meta != nil {
		details.Fee = LamportsToSOL(res.Meta.Fee)
		details.Failed = res.Meta.Err != nil
	}
	if res.BlockTime != nil {
		t := res.BlockTime.Time()
		details.Timestamp = &t
	}
	return details, nil
}

type heliusTransaction struct {
	Signature        string      `json:"signature"`
	Fee              uint64      `json:"fee"`
	Timestamp        int64       `json:"timestamp"`
	Type             string      `json:"type"`
	Description      string      `json:"description"`
	TransactionError interface{} `json:"transactionError"`
}

func (c *SolanaClient) heliusTransaction(ctx context.Context, signature string) (*entities.TransactionDetails, error) {
	body, err := json.Marshal(map[string][]string{"transactions": {signature}})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	url := fmt.Sprintf("%s/transactions?api-key=%s", c.config.HeliusURL, c.config.HeliusAPIKey)

	var parsed []heliusTransaction
	err = c.call(ctx, "helius.transactions", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("helius returned status %d: %s", resp.StatusCode, string(data))
		}
		return json.Unmarshal(data, &parsed)
	})
	if err != nil {
		return nil, err
	}
	if len(parsed) == 0 {
		return nil, domainerrors.NotFoundError("transaction")
	}

	tx := parsed[0]
	details := &entities.TransactionDetails{
		Signature:   signature,
		Fee:         LamportsToSOL(tx.Fee),
		Type:        tx.Type,
		Description: tx.Description,
		Failed:      tx.TransactionError != nil,
	}
	if tx.Timestamp > 0 {
		t := time.Unix(tx.Timestamp, 0).UTC()
		details.Timestamp = &t
	}
	return details, nil
}

// SendPayment transfers amount SOL from fromAddress to toAddress and waits for confirmation.
// fromAddress must have a registered signer.
func (c *SolanaClient) SendPayment(ctx context.Context, fromAddress, toAddress string, amount decimal.Decimal) (signature string, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "ledger.SendPayment",
		attribute.String("from", fromAddress),
		attribute.String("to", toAddress),
		attribute.String("amount", amount.String()))
	defer func() { tracing.EndSpan(span, err) }()

	from, err := solana.PublicKeyFromBase58(strings.TrimSpace(fromAddress))
	if err != nil {
		return "", domainerrors.InvalidAddressError(fromAddress)
	}
	to, err := solana.PublicKeyFromBase58(strings.TrimSpace(toAddress))
	if err != nil {
		return "", domainerrors.InvalidAddressError(toAddress)
	}
	lamports, err := SOLToLamports(amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domainerrors.ErrInvalidAmount, err)
	}

	c.mu.RLock()
	key, ok := c.signers[from]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", domainerrors.ErrSignerUnavailable, fromAddress)
	}

	var blockhash solana.Hash
	err = c.call(ctx, "getLatestBlockhash", func(ctx context.Context) error {
		res, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
		if err != nil {
			return err
		}
		blockhash = res.Value.Blockhash
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{system.NewTransferInstruction(lamports, from, to).Build()},
		blockhash,
		solana.TransactionPayer(from),
	)
	if err != nil {
		return "", fmt.Errorf("failed to build transaction: %w", err)
	}
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(from) {
			return &key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	// sends bypass the breaker and are never retried
	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	observe("sendTransaction", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Info("Transaction submitted",
		zap.String("signature", sig.String()),
		zap.String("from", fromAddress),
		zap.String("to", toAddress),
		zap.String("amount", amount.String()))

	if err := c.waitForConfirmation(ctx, sig); err != nil {
		return sig.String(), err
	}
	return sig.String(), nil
}

func (c *SolanaClient) waitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		if err == nil && res != nil && len(res.Value) > 0 && res.Value[0] != nil {
			status := res.Value[0]
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed: %v", sig.String(), status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction %s not confirmed: %w", sig.String(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// call runs fn through the circuit breaker with a per-request timeout and records latency
func (c *SolanaClient) call(ctx context.Context, method string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	observe(method, start, err)
	return err
}

func observe(method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LedgerRequestDuration.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}
