package launch

import "errors"

var (
	// ErrPlatformNotFound is returned when an operation requires the
	// platform to be initialised first.
	ErrPlatformNotFound = errors.New("launch: platform not initialised")
	// ErrPlatformExists is returned when initialisation runs twice.
	ErrPlatformExists = errors.New("launch: platform already initialised")
	// ErrSaleNotFound is returned when the referenced asset has no sale.
	ErrSaleNotFound = errors.New("launch: sale not found")
	// ErrSaleExists is returned when a creator reuses an asset identity.
	ErrSaleExists = errors.New("launch: sale already exists")
	// ErrInvalidAmount rejects zero-sized trades.
	ErrInvalidAmount = errors.New("launch: amount must be positive")
	// ErrSlippageExceeded is returned when a quote moves past the caller's
	// bound between submission and execution.
	ErrSlippageExceeded = errors.New("launch: slippage tolerance exceeded")
	// ErrInsufficientUnitsSold rejects sells larger than the sold total.
	ErrInsufficientUnitsSold = errors.New("launch: sell exceeds units sold")
	// ErrExceedsSupply rejects buys past the remaining curve supply.
	ErrExceedsSupply = errors.New("launch: purchase exceeds remaining supply")
	// ErrInsufficientBalance is returned when the trader cannot fund the
	// trade.
	ErrInsufficientBalance = errors.New("launch: insufficient balance")
	// ErrInsufficientVaultBalance signals a reserve accounting violation:
	// the escrow cannot cover a payout it should always cover.
	ErrInsufficientVaultBalance = errors.New("launch: insufficient vault balance")
	// ErrAlreadyGraduated rejects trades against a migrated sale.
	ErrAlreadyGraduated = errors.New("launch: sale already graduated")
	// ErrAlreadyMigrated rejects a second migration.
	ErrAlreadyMigrated = errors.New("launch: sale already migrated")
	// ErrTargetNotReached rejects manual migration before graduation.
	ErrTargetNotReached = errors.New("launch: migration target not reached")
	// ErrUnauthorizedAdmin rejects privileged calls from other addresses.
	ErrUnauthorizedAdmin = errors.New("launch: caller is not authorised")
)
