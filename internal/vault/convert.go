package vault

import "math/big"

// Share/asset conversion uses a virtual one-unit share and one-unit asset
// offset: every ratio is taken against (S+1) shares and (A+1) assets. The
// offset dampens, but does not eliminate, first-depositor price manipulation
// by ensuring the ratio is defined and near 1:1 on an empty vault.
//
// Rounding direction is a security property, not a detail: every operation
// rounds in the vault's favor. Deposits round shares down, mints round assets
// up, withdrawals round shares up, redemptions round assets down.
//
// Intermediates go through big.Int because amount*(S+1) does not fit uint64.

var maxUint64 = new(big.Int).SetUint64(^uint64(0))

// mulDivFloor computes floor(a*b/c). c must be nonzero.
func mulDivFloor(a, b, c uint64) (uint64, error) {
	p := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	p.Quo(p, new(big.Int).SetUint64(c))
	if p.Cmp(maxUint64) > 0 {
		return 0, ErrAmountOverflow
	}
	return p.Uint64(), nil
}

// mulDivCeil computes ceil(a*b/c). c must be nonzero.
func mulDivCeil(a, b, c uint64) (uint64, error) {
	bigC := new(big.Int).SetUint64(c)
	p := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	q, r := new(big.Int).QuoRem(p, bigC, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	if q.Cmp(maxUint64) > 0 {
		return 0, ErrAmountOverflow
	}
	return q.Uint64(), nil
}

// convertToShares prices assets in shares at the current ratio, rounding
// down.
func convertToShares(assets, totalShares, totalAssets uint64) (uint64, error) {
	return mulDivFloor(assets, totalShares+1, totalAssets+1)
}

// convertToAssets prices shares in assets at the current ratio, rounding
// down.
func convertToAssets(shares, totalShares, totalAssets uint64) (uint64, error) {
	return mulDivFloor(shares, totalAssets+1, totalShares+1)
}
