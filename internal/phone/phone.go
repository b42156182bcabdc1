// Package phone canonicalizes recipient identifiers so the WhatsApp sender
// ("whatsapp:+5491123456789") and a registry cell ("11 2345-6789") compare
// equal.
package phone

import "strings"

// SuffixLength is the number of trailing digits two numbers must share to be
// the same recipient. It drops country codes and the mobile "9" prefix, which
// the transport adds and spreadsheets usually omit.
const SuffixLength = 10

// Normalize returns the canonical digit-only form of raw. Inputs with fewer
// than SuffixLength digits come back as all their digits; callers treat those
// as unresolvable.
func Normalize(raw string) string {
	digits := digitsOf(raw)
	if len(digits) < SuffixLength {
		return digits
	}
	return digits[len(digits)-SuffixLength:]
}

// Resolvable reports whether a canonical phone is long enough to match
// registry rows.
func Resolvable(canonical string) bool {
	return len(canonical) == SuffixLength
}

// Equal compares two raw representations.
func Equal(a, b string) bool {
	na, nb := Normalize(a), Normalize(b)
	return Resolvable(na) && na == nb
}

// WhatsAppAddress builds the transport address for a raw number. Values
// already carrying the channel prefix are returned unchanged. Leading zeros
// (the national trunk "0" or the international "00") are dropped, and local
// numbers of SuffixLength digits or fewer then get countryPrefix (e.g. "549").
func WhatsAppAddress(raw, countryPrefix string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "whatsapp:") {
		return raw
	}
	digits := strings.TrimLeft(digitsOf(raw), "0")
	if len(digits) <= SuffixLength {
		digits = countryPrefix + digits
	}
	return "whatsapp:+" + digits
}

func digitsOf(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
