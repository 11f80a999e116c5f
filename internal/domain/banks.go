package domain

import "strings"

// Canonical bank identifiers. The sandbox registered its third bank with a
// capital C ("bankC") while the first two are lowercase; everything inside
// this service works with the lowercase canonical form and converts back to
// the wire form only at the HTTP boundary.
const (
	BankA = "banka"
	BankB = "bankb"
	BankC = "bankc"
)

// NormalizeBank lowercases and trims a bank identifier. It accepts display
// names ("Bank of A") as well as raw ids, returning the canonical id and
// whether the input was recognizable as a bank identifier at all.
func NormalizeBank(s string) (string, bool) {
	b := strings.ToLower(strings.TrimSpace(s))
	switch b {
	case BankA, BankB, BankC:
		return b, true
	case "bank of a", "bank a":
		return BankA, true
	case "bank of b", "bank b":
		return BankB, true
	case "bank of c", "bank c":
		return BankC, true
	}
	return b, b != ""
}

// WireBankID converts a canonical bank id to the identifier the sandbox
// expects on the wire.
func WireBankID(canonical string) string {
	if canonical == BankC {
		return "bankC"
	}
	return canonical
}
