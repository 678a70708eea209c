package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
)

type fakeRPC struct {
	balance    uint64
	balanceErr error
	slotErr    error
	sigs       []*rpc.TransactionSignature
	tx         *rpc.GetTransactionResult
	txCalls    int
}

func (f *fakeRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return &rpc.GetBalanceResult{Value: f.balance}, nil
}

func (f *fakeRPC) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	return 42, f.slotErr
}

func (f *fakeRPC) GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	return f.sigs, nil
}

func (f *fakeRPC) GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.txCalls++
	return f.tx, nil
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeRPC) SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	return solana.Signature{}, errors.New("not used")
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	return nil, errors.New("not used")
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func newTestClient(t *testing.T, cfg Config, api rpcAPI) *SolanaClient {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = newKey(t).PublicKey().String()
	}
	c, err := newSolanaClient(cfg, api, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestParsePrivateKey_Encodings(t *testing.T) {
	key := newKey(t)

	fromBase58, err := ParsePrivateKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromBase58.PublicKey())

	fromBase64, err := ParsePrivateKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromBase64.PublicKey())

	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	fromArray, err := ParsePrivateKey(string(raw))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromArray.PublicKey())
}

func TestParsePrivateKey_Invalid(t *testing.T) {
	_, err := ParsePrivateKey("")
	assert.Error(t, err)

	_, err = ParsePrivateKey(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)

	_, err = ParsePrivateKey("[1,2,300]")
	assert.Error(t, err)
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress(newKey(t).PublicKey().String()))
	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("not-an-address"))
	assert.False(t, IsValidAddress("0OIl"))
}

func TestLamportConversion(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1.5").Equal(LamportsToSOL(1_500_000_000)))
	assert.True(t, decimal.RequireFromString("0.000000001").Equal(LamportsToSOL(1)))

	lamports, err := SOLToLamports(decimal.RequireFromString("4.75"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4_750_000_000), lamports)

	lamports, err = SOLToLamports(decimal.RequireFromString("0.0000000019"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), lamports)

	_, err = SOLToLamports(decimal.RequireFromString("0.0000000001"))
	assert.Error(t, err)
	_, err = SOLToLamports(decimal.Zero)
	assert.Error(t, err)
}

func TestSolanaClient_GetBalance(t *testing.T) {
	api := &fakeRPC{balance: 2_500_000_000}
	c := newTestClient(t, Config{}, api)

	balance, err := c.GetBalance(context.Background(), c.BotAddress())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("2.5").Equal(balance))

	_, err = c.GetBalance(context.Background(), "bogus")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidAddress)

	api.balanceErr = errors.New("rpc down")
	_, err = c.GetBalance(context.Background(), c.BotAddress())
	assert.Error(t, err)
}

func TestSolanaClient_Signers(t *testing.T) {
	key := newKey(t)
	c := newTestClient(t, Config{Address: key.PublicKey().String(), PrivateKey: key.String()}, &fakeRPC{})

	assert.True(t, c.CanSign(key.PublicKey().String()))
	assert.False(t, c.CanSign(newKey(t).PublicKey().String()))
}

func TestSolanaClient_SendPaymentWithoutSigner(t *testing.T) {
	c := newTestClient(t, Config{}, &fakeRPC{})

	_, err := c.SendPayment(context.Background(), c.BotAddress(), newKey(t).PublicKey().String(), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domainerrors.ErrSignerUnavailable)
}

func TestSolanaClient_GetRecentTransactions(t *testing.T) {
	blockTime := solana.UnixTimeSeconds(1_700_000_000)
	sig := solana.Signature{1, 2, 3}
	api := &fakeRPC{sigs: []*rpc.TransactionSignature{
		{Signature: sig, Slot: 10, BlockTime: &blockTime},
		{Signature: solana.Signature{4}, Slot: 9, Err: map[string]interface{}{"InstructionError": 1}},
	}}
	c := newTestClient(t, Config{}, api)

	txs, err := c.GetRecentTransactions(context.Background(), c.BotAddress(), 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, sig.String(), txs[0].Signature)
	require.NotNil(t, txs[0].BlockTime)
	assert.Equal(t, int64(1_700_000_000), txs[0].BlockTime.Unix())
	assert.False(t, txs[0].Failed)
	assert.True(t, txs[1].Failed)
}

func TestSolanaClient_TransactionDetailsFromHelius(t *testing.T) {
	sig := solana.Signature{9, 9, 9}.String()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "helius-key", r.URL.Query().Get("api-key"))

		var body map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{sig}, body["transactions"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"signature":"` + sig + `","fee":5000,"timestamp":1700000000,"type":"TRANSFER","description":"sent 1 SOL"}]`))
	}))
	defer server.Close()

	api := &fakeRPC{}
	c := newTestClient(t, Config{HeliusAPIKey: "helius-key", HeliusURL: server.URL + "/"}, api)

	details, err := c.GetTransactionDetails(context.Background(), sig)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.000005").Equal(details.Fee))
	assert.Equal(t, "TRANSFER", details.Type)
	require.NotNil(t, details.Timestamp)
	assert.Equal(t, int64(1_700_000_000), details.Timestamp.Unix())
	assert.Zero(t, api.txCalls)
}

func TestSolanaClient_TransactionDetailsFallsBackToRPC(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	blockTime := solana.UnixTimeSeconds(1_700_000_100)
	api := &fakeRPC{tx: &rpc.GetTransactionResult{
		BlockTime: &blockTime,
		Meta:      &rpc.TransactionMeta{Fee: 10_000},
	}}
	c := newTestClient(t, Config{HeliusAPIKey: "helius-key", HeliusURL: server.URL}, api)

	details, err := c.GetTransactionDetails(context.Background(), solana.Signature{7}.String())
	require.NoError(t, err)
	assert.Equal(t, 1, api.txCalls)
	assert.True(t, decimal.RequireFromString("0.00001").Equal(details.Fee))
	require.NotNil(t, details.Timestamp)
	assert.Equal(t, int64(1_700_000_100), details.Timestamp.Unix())
}
