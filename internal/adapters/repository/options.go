package repository

// defaultAppliedLedgerSize bounds the store's applied-key ledger.
const defaultAppliedLedgerSize = 200_000

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithAppliedLedgerSize sets the capacity of the applied idempotency-key
// ledger. Keys older than the retained window can no longer be detected as
// duplicates by this store.
func WithAppliedLedgerSize(size int) Option {
	return func(s *TreapStore) {
		if size > 0 {
			s.appliedSize = size
		}
	}
}
