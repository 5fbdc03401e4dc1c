package types

import "log/slog"

// SecretString wraps sensitive values (connection strings, API keys) so they
// cannot leak through logs or JSON encoding. Use Reveal() at the single point
// where the raw value is actually needed.
type SecretString string

// String implements fmt.Stringer with a redacted placeholder.
func (s SecretString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// LogValue implements slog.LogValuer so structured logging is always redacted.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// MarshalJSON encodes the redacted placeholder, never the raw value.
func (s SecretString) MarshalJSON() ([]byte, error) {
	if s == "" {
		return []byte(`""`), nil
	}
	return []byte(`"[REDACTED]"`), nil
}

// Reveal returns the raw secret value.
func (s SecretString) Reveal() string {
	return string(s)
}
