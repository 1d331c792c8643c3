package vault

import "errors"

var (
	// ErrCannotSweepProtectedAsset guards the custody pool: the protected
	// asset is unsweepable on every path, including calls originating from
	// the delay authority.
	ErrCannotSweepProtectedAsset = errors.New("cannot sweep protected asset")

	// ErrNilReceiver rejects operations that would credit the null address.
	ErrNilReceiver = errors.New("receiver is the null address")

	// ErrNotShareOwner rejects a withdrawal or redemption by a caller other
	// than the share owner. No share-allowance system exists.
	ErrNotShareOwner = errors.New("caller is not the share owner")

	// ErrInsufficientShares reports a burn exceeding the owner's balance.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrAmountOverflow reports a conversion result exceeding uint64.
	ErrAmountOverflow = errors.New("amount overflows uint64")
)
