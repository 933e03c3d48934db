package gateway

import (
	"regexp"
)

var (
	redactNumberRe = regexp.MustCompile(`(?i)"number":\s*"[^"]*([^"]{4})"`)
	redactCCVRe    = regexp.MustCompile(`(?i)"ccv":\s*"[^"]*"`)
)

var (
	cardNumberKeys = map[string]bool{"ccnumber": true, "number": true, "CardNumber": true}
	cardCVVKeys    = map[string]bool{"cvv": true, "ccv": true, "CardCVV": true}
)

// RedactString produces a logging-safe copy of a serialized payload:
// card numbers keep only their last four digits and CVV values are
// blanked entirely. Idempotent; a previously redacted payload passes
// through unchanged.
func RedactString(payload string) string {
	out := redactCCVRe.ReplaceAllString(payload, `"ccv":"***"`)
	return redactNumberRe.ReplaceAllString(out, `"number":"***$1"`)
}

// RedactMap returns a deep copy of the payload with card number and CVV
// fields masked. Every nested map and slice is sanitised, not just the
// first one encountered. The input is never mutated.
func RedactMap(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch {
		case cardNumberKeys[k]:
			out[k] = maskCardNumber(v)
		case cardCVVKeys[k]:
			out[k] = "***"
		default:
			out[k] = redactValue(v)
		}
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return RedactMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}

func maskCardNumber(v any) string {
	s, ok := v.(string)
	if !ok {
		return "***"
	}
	return "***" + lastFour(s)
}

func lastFour(s string) string {
	// strip an existing mask so re-redaction is stable
	for len(s) > 0 && s[0] == '*' {
		s = s[1:]
	}
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}
