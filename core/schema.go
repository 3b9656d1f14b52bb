package core

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
)

// Fixed column names every input and output batch shares. Only the
// identity and value columns are caller-configurable; the four temporal
// fields and the derived fingerprint always use these names.
const (
	ColEffectiveFrom = "effective_from"
	ColEffectiveTo   = "effective_to"
	ColAsOfFrom      = "as_of_from"
	ColAsOfTo        = "as_of_to"
	ColValueHash     = "value_hash"
)

// FingerprintWidthFast64 and FingerprintWidthCrypto256 are the byte widths
// of a fingerprint rendered as a hex string (16 hex chars for the 64-bit
// digest, 64 for the 256-bit one). A value_hash column found
// on input is only reused verbatim when it matches the width implied by
// the configured algorithm.
const FingerprintWidthFast64 = 16
const FingerprintWidthCrypto256 = 64

// FieldIndex returns the index of the named field in schema, or -1 if the
// field is absent. It is a thin wrapper over arrow.Schema.FieldIndices that
// collapses the "zero or many" result arrow-go returns into "found or not".
func FieldIndex(schema *arrow.Schema, name string) int {
	idxs := schema.FieldIndices(name)
	if len(idxs) == 0 {
		return -1
	}
	return idxs[0]
}

// RequiredColumns returns every column name a compute-changes call requires
// to be present on both the current and updates batches, in a stable order
// suitable for deterministic error messages.
func RequiredColumns(idColumns, valueColumns []string) []string {
	required := make([]string, 0, len(idColumns)+len(valueColumns)+4)
	required = append(required, idColumns...)
	required = append(required, valueColumns...)
	required = append(required, ColEffectiveFrom, ColEffectiveTo, ColAsOfFrom, ColAsOfTo)
	return required
}

// ValidateRequiredColumns checks that every required column is present in
// schema, returning a SchemaError naming the first missing one.
func ValidateRequiredColumns(schema *arrow.Schema, idColumns, valueColumns []string, batchName string) error {
	for _, name := range RequiredColumns(idColumns, valueColumns) {
		if FieldIndex(schema, name) < 0 {
			return NewSchemaError(name, fmt.Sprintf("required column missing from %s batch", batchName))
		}
	}
	return nil
}

// ValidateMatchingSchemas checks that current and updates carry the same
// required columns with the same Arrow physical types, returning a
// SchemaError describing the first mismatch.
func ValidateMatchingSchemas(current, updates *arrow.Schema, idColumns, valueColumns []string) error {
	for _, name := range RequiredColumns(idColumns, valueColumns) {
		ci, ui := FieldIndex(current, name), FieldIndex(updates, name)
		if ci < 0 || ui < 0 {
			continue // already reported by ValidateRequiredColumns
		}
		ct, ut := current.Field(ci).Type, updates.Field(ui).Type
		if !arrow.TypeEqual(ct, ut) {
			return NewSchemaError(name, fmt.Sprintf("type mismatch between current (%s) and updates (%s)", ct, ut))
		}
	}
	return nil
}
