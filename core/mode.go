package core

// UpdateMode selects how the updates batch is interpreted: as a delta
// against current state, or as the complete desired active state.
type UpdateMode string

const (
	Delta     UpdateMode = "delta"
	FullState UpdateMode = "full_state"
)

// ParseUpdateMode validates a caller-supplied mode string against the
// enumerated set, returning ValueError otherwise.
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch UpdateMode(s) {
	case Delta, FullState:
		return UpdateMode(s), nil
	default:
		return "", NewValueError("update_mode", s)
	}
}

// HashAlgorithm selects the fingerprint algorithm used by the value-column
// fingerprint builder.
type HashAlgorithm string

const (
	Fast64   HashAlgorithm = "fast64"
	Crypto256 HashAlgorithm = "crypto256"
)

// ParseHashAlgorithm validates a caller-supplied algorithm string against
// the enumerated set, returning ValueError otherwise.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch HashAlgorithm(s) {
	case Fast64, Crypto256:
		return HashAlgorithm(s), nil
	default:
		return "", NewValueError("hash_algorithm", s)
	}
}
