package session

import (
	"regexp"
	"strings"
)

// OptOutDetector identifies opt-out keywords in inbound messages. The keyword
// list covers the Spanish phrasings TechAura customers actually use plus the
// carrier-standard English ones.
type OptOutDetector struct {
	stopRegex *regexp.Regexp
}

// NewOptOutDetector returns a keyword detector with sane defaults.
func NewOptOutDetector() *OptOutDetector {
	return &OptOutDetector{
		stopRegex: regexp.MustCompile(`(?i)^(?:por\s+favor\s+)?(stop|baja|cancelar|salir|no\s+molestar|no\s+mas\s+mensajes|unsubscribe|quit)\b`),
	}
}

// IsOptOut returns true when body contains an opt-out keyword.
func (d *OptOutDetector) IsOptOut(body string) bool {
	if d == nil || d.stopRegex == nil {
		return false
	}
	return d.stopRegex.MatchString(strings.TrimSpace(body))
}
