package server

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/holiman/uint256"

	nativecommon "campusfi/native/common"
	"campusfi/native/fixed"
	"campusfi/services/financed/fixtures"
)

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode request: %v", nativecommon.ErrInvalidConfiguration, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseAmount parses a required decimal token amount.
func parseAmount(name, raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: %s required", nativecommon.ErrInvalidConfiguration, name)
	}
	v, err := fixed.ParseWad(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func parseAmount256(name, raw string) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: %s required", nativecommon.ErrInvalidConfiguration, name)
	}
	v, err := fixtures.ParseUint256(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func formatU(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return fixed.FormatWad(v.ToBig())
}
