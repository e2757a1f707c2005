package ledger

import "errors"

// Sentinel errors for every validation failure the ledger can produce.
// Handlers convert these to the wire {error} shape; the ledger itself
// never formats HTTP responses. Validation always runs before any state
// mutation, so an error means nothing changed.
var (
	// ErrNoMarket is returned when the engine has no initialized market.
	ErrNoMarket = errors.New("ledger: market not initialized")

	// ErrMarketClosed is returned for mutations attempted after resolution.
	ErrMarketClosed = errors.New("ledger: market is not open for trading")

	// ErrInvalidParams is returned for out-of-range or non-positive inputs.
	ErrInvalidParams = errors.New("ledger: invalid parameters")

	// ErrInsufficientShares is returned when a sell exceeds holdings
	// beyond the floating tolerance.
	ErrInsufficientShares = errors.New("ledger: insufficient shares")
)
