package ledger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const privateKeyLength = 64

var lamportsPerSOL = decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))

// ParsePrivateKey accepts a base58, base64 or JSON byte-array encoded ed25519 keypair
func ParsePrivateKey(raw string) (solana.PrivateKey, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty private key")
	}

	if strings.HasPrefix(raw, "[") {
		var bytes []byte
		var ints []int
		if err := json.Unmarshal([]byte(raw), &ints); err != nil {
			return nil, fmt.Errorf("failed to decode private key array: %w", err)
		}
		for _, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("private key array value out of range: %d", v)
			}
			bytes = append(bytes, byte(v))
		}
		return checkKeyLength(solana.PrivateKey(bytes))
	}

	if key, err := solana.PrivateKeyFromBase58(raw); err == nil && len(key) == privateKeyLength {
		return key, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("private key is neither base58 nor base64: %w", err)
	}
	return checkKeyLength(solana.PrivateKey(decoded))
}

func checkKeyLength(key solana.PrivateKey) (solana.PrivateKey, error) {
	if len(key) != privateKeyLength {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", privateKeyLength, len(key))
	}
	return key, nil
}

// IsValidAddress reports whether s decodes to a 32 byte public key
func IsValidAddress(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// LamportsToSOL converts a lamport amount into SOL
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9)
}

// SOLToLamports converts a SOL amount into lamports, rounding down
func SOLToLamports(amount decimal.Decimal) (uint64, error) {
	lamports := amount.Mul(lamportsPerSOL).Floor()
	if !lamports.IsPositive() {
		return 0, fmt.Errorf("amount %s is below one lamport", amount.String())
	}
	return lamports.BigInt().Uint64(), nil
}
