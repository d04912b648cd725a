// Package dedupe provides the idempotency ledger used to reject duplicate
// score events.
package dedupe

// Option applies a configuration option to the ledger.
type Option func(*ledger)

// WithMaxSize sets the maximum number of keys to retain.
// maxSize > 0 enables bounded mode with oldest-first eviction;
// maxSize <= 0 keeps every key forever.
func WithMaxSize(maxSize int) Option {
	return func(d *ledger) {
		d.maxSize = maxSize
	}
}
