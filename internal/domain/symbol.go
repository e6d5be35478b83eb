package domain

import (
	"fmt"
	"strings"
)

// Symbol identifies a tradable asset pair: Base priced in Quote. The identity
// is immutable; two Symbols are equal iff both assets match.
type Symbol struct {
	Base  string
	Quote string
}

// ParseSymbol parses a canonical "BASE/QUOTE" string, e.g. "BTC/USDT".
func ParseSymbol(s string) (Symbol, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Symbol{}, fmt.Errorf("parse symbol %q: %w", s, ErrUnknownSymbol)
	}
	return Symbol{
		Base:  strings.ToUpper(parts[0]),
		Quote: strings.ToUpper(parts[1]),
	}, nil
}

// String renders the canonical "BASE/QUOTE" form.
func (s Symbol) String() string {
	return s.Base + "/" + s.Quote
}

// IsZero reports whether the Symbol is unset.
func (s Symbol) IsZero() bool {
	return s.Base == "" && s.Quote == ""
}

// MarshalText implements encoding.TextMarshaler so Symbols can be used as
// JSON object keys and TOML values.
func (s Symbol) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Symbol) UnmarshalText(text []byte) error {
	parsed, err := ParseSymbol(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
