package layout

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"gestaofiscal/ms_nfe_core/internal/core/outcome"
)

// NonceFunc produces the 8-digit random cNF component of an access key. It
// must return a fresh value per issuance attempt so retries after a rebuild
// never reuse a numeric code.
type NonceFunc func() string

var nonceMax = big.NewInt(100_000_000)

// RandomNonce draws a fresh 8-digit code from crypto/rand.
func RandomNonce() string {
	n, err := rand.Int(rand.Reader, nonceMax)
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken;
		// fall back to a time-derived code rather than aborting emission.
		return fmt.Sprintf("%08d", time.Now().UnixNano()%100_000_000)
	}
	return fmt.Sprintf("%08d", n.Int64())
}

// CheckDigit computes the modulo-11 verifier over the 43 leading digits of an
// access key. Weights cycle 2..9 starting from the least-significant digit;
// remainders below 2 map to 0, everything else to 11 minus the remainder.
func CheckDigit(key43 string) (int, error) {
	if len(key43) != 43 {
		return 0, fmt.Errorf("access key prefix must have 43 digits, got %d", len(key43))
	}
	sum := 0
	weight := 2
	for i := len(key43) - 1; i >= 0; i-- {
		c := key43[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("access key must be numeric, found %q", c)
		}
		sum += int(c-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0, nil
	}
	return 11 - r, nil
}

// BuildAccessKey assembles the 44-digit key:
// cUF(2) YYMM(4) CNPJ(14) mod(2) serie(3) nNF(9) tpEmis(1) cNF(8) DV(1).
func BuildAccessKey(ufCode string, emitted time.Time, cnpj string, model, serie int, number int64, emissionType int, nonce string) (string, error) {
	if len(ufCode) != 2 {
		return "", outcome.NewBuildError("cUF", "state code must have 2 digits")
	}
	if len(cnpj) != 14 {
		return "", outcome.NewBuildError("CNPJ", "must have 14 digits")
	}
	if len(nonce) != 8 {
		return "", outcome.NewBuildError("cNF", "nonce must have 8 digits")
	}
	prefix := ufCode +
		emitted.Format("0601") +
		cnpj +
		PadNumber(int64(model), 2) +
		PadNumber(int64(serie), 3) +
		PadNumber(number, 9) +
		PadNumber(int64(emissionType), 1) +
		nonce
	dv, err := CheckDigit(prefix)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("%s%d", prefix, dv)

	// Recompute as an internal invariant; a disagreement here means the
	// composition above is corrupt.
	if !ValidAccessKey(key) {
		return "", outcome.ErrCheckDigitMismatch
	}
	return key, nil
}

// ValidAccessKey reports whether the 44th digit validates the leading 43.
func ValidAccessKey(key string) bool {
	if len(key) != 44 {
		return false
	}
	dv, err := CheckDigit(key[:43])
	if err != nil {
		return false
	}
	return int(key[43]-'0') == dv
}
