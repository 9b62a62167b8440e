package marketplace

import (
	"strings"
)

// ---------------------------------------------------------------------------
// Code identifies an external marketplace
// ---------------------------------------------------------------------------

// Code identifies an external resale marketplace
type Code string

const (
	CodeEbay     Code = "EBAY"
	CodePoshmark Code = "POSHMARK"
)

// AllCodes returns every marketplace the system knows about
func AllCodes() []Code {
	return []Code{CodeEbay, CodePoshmark}
}

// IsValid returns true if the code is a known marketplace
func (c Code) IsValid() bool {
	switch c {
	case CodeEbay, CodePoshmark:
		return true
	default:
		return false
	}
}

// String returns the string representation of the code
func (c Code) String() string {
	return string(c)
}

// DisplayName returns a human-readable marketplace name
func (c Code) DisplayName() string {
	switch c {
	case CodeEbay:
		return "eBay"
	case CodePoshmark:
		return "Poshmark"
	default:
		return string(c)
	}
}

// ParseCode parses user input ("ebay", " Poshmark ") into a Code.
func ParseCode(s string) (Code, error) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrUnknownMarketplace
	}
	return c, nil
}

// ---------------------------------------------------------------------------
// Mechanism describes how an adapter talks to its marketplace
// ---------------------------------------------------------------------------

// Mechanism is the integration mechanism used by an adapter
type Mechanism string

const (
	MechanismAPI     Mechanism = "API"
	MechanismBrowser Mechanism = "BROWSER"
)

// String returns the string representation of the mechanism
func (m Mechanism) String() string {
	return string(m)
}

// Mechanism returns how the marketplace is integrated
func (c Code) Mechanism() Mechanism {
	if c == CodePoshmark {
		return MechanismBrowser
	}
	return MechanismAPI
}
