package audit

import (
	"strings"
)

// DefaultPIIFields is the built-in PII field list used when none is
// configured. Matching is a case-insensitive substring check on the
// separator-stripped field name.
var DefaultPIIFields = []string{
	"email", "password", "phone", "nationalid", "taxnumber", "iban", "bankaccount", "cardnumber",
}

// Masker redacts PII values inside diffs before they reach storage
type Masker struct {
	fields []string
}

// NewMasker creates a Masker for the given PII field list
func NewMasker(fields []string) *Masker {
	if len(fields) == 0 {
		fields = DefaultPIIFields
	}
	normalized := make([]string, 0, len(fields))
	for _, f := range fields {
		normalized = append(normalized, normalizeFieldName(f))
	}
	return &Masker{fields: normalized}
}

// Mask returns a copy of the diff with every value under a PII-matching
// key redacted, recursively through nested maps, slices, and Change
// values. The input is not modified.
func (m *Masker) Mask(diff DiffMap) DiffMap {
	if diff == nil {
		return nil
	}
	out := make(DiffMap, len(diff))
	for key, value := range diff {
		out[key] = m.maskValue(key, value, m.isPII(key))
	}
	return out
}

func (m *Masker) maskValue(key string, value interface{}, force bool) interface{} {
	switch v := value.(type) {
	case Change:
		return Change{
			From: m.maskValue(key, v.From, force),
			To:   m.maskValue(key, v.To, force),
		}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, nested := range v {
			out[k] = m.maskValue(k, nested, force || m.isPII(k))
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = m.maskValue(key, item, force)
		}
		return out
	case string:
		if force {
			return maskString(key, v)
		}
		return v
	default:
		if force && value != nil {
			// Non-string scalars under a PII key are fully redacted
			return "****"
		}
		return value
	}
}

func (m *Masker) isPII(key string) bool {
	normalized := normalizeFieldName(key)
	for _, field := range m.fields {
		if strings.Contains(normalized, field) {
			return true
		}
	}
	return false
}

func normalizeFieldName(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("_", "", "-", "", " ", "").Replace(name)
	return name
}

// maskString produces a truncated-plus-asterisk representation. Email
// values keep the domain after masking the local part.
func maskString(key, value string) string {
	if value == "" {
		return ""
	}
	if at := strings.LastIndex(value, "@"); at > 0 && strings.Contains(normalizeFieldName(key), "email") {
		return truncate(value[:at]) + value[at:]
	}
	return truncate(value)
}

func truncate(s string) string {
	runes := []rune(s)
	keep := 2
	if len(runes) <= keep {
		keep = 1
	}
	if len(runes) == 0 {
		return ""
	}
	return string(runes[:keep]) + "****"
}
