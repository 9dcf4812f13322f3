// Package numerator provides domain contracts for fiscal invoice numbering (NCF).
// Implementations live in the domain and infrastructure layers.
package numerator

import (
	"fmt"
	"regexp"
	"strconv"
)

// PadWidth is the zero-padded width of the sequential part of an NCF.
const PadWidth = 8

// MaxNumber is the largest sequential part that fits in PadWidth digits.
// A counter at MaxNumber is exhausted.
const MaxNumber int64 = 99_999_999

// Invoice type codes issued by DGII.
const (
	TypeCreditoFiscal    = "B01"
	TypeConsumo          = "B02"
	TypeNotaDebito       = "B03"
	TypeNotaCredito      = "B04"
	TypeRegimenEspecial  = "B14"
	TypeGubernamental    = "B15"
	TypeExportaciones    = "B16"
	TypeECFCreditoFiscal = "E31"
	TypeECFConsumo       = "E32"
)

// DefaultTypes are provisioned for every new store.
var DefaultTypes = []string{
	TypeCreditoFiscal,
	TypeConsumo,
	TypeNotaCredito,
	TypeRegimenEspecial,
	TypeGubernamental,
}

var (
	typeCodePattern = regexp.MustCompile(`^[A-Z][0-9]{2}$`)
	// Anchored at the end so prefixes that contain hyphens still resolve
	// to the last hyphen-digit run.
	suffixPattern = regexp.MustCompile(`-([0-9]+)$`)
)

// ValidTypeCode reports whether code has the shape of an invoice type (letter + 2 digits).
func ValidTypeCode(code string) bool {
	return typeCodePattern.MatchString(code)
}

// RequiresBuyerRNC reports whether invoices of this type must carry the buyer's tax id.
func RequiresBuyerRNC(code string) bool {
	switch code {
	case TypeCreditoFiscal, TypeGubernamental, TypeRegimenEspecial, TypeECFCreditoFiscal:
		return true
	}
	return false
}

// Format builds the fiscal identifier, e.g. Format("B02", 43) == "B02-00000043".
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s-%0*d", prefix, PadWidth, n)
}

// ExtractNumericSuffix returns the trailing integer of a "<prefix>-<digits>" identifier.
// ok is false when the string does not end in a hyphen-digit run or the
// digits overflow int64.
func ExtractNumericSuffix(formatted string) (n int64, ok bool) {
	m := suffixPattern.FindStringSubmatch(formatted)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
