// Package content validates outbound message copy against business rules,
// e.g. no urgency or discount pressure once an order is already confirmed.
package content

import (
	"context"
	"regexp"
	"strings"

	"github.com/JCamiloLancherosB/techaura-full-automatic-main-sub004/internal/gate"
)

// confirmedStatuses are order states after which marketing pressure copy is contradictory.
var confirmedStatuses = map[string]struct{}{
	"confirmed": {},
	"paid":      {},
	"burning":   {},
	"completed": {},
}

// contentRule is a compiled pattern plus the condition under which it applies.
type contentRule struct {
	re            *regexp.Regexp
	reason        string
	postConfirmed bool // if true, only enforced once the order is confirmed
}

var contentRules = []contentRule{
	// Urgency / scarcity phrasing (Spanish first, English fallbacks).
	{regexp.MustCompile(`(?i)(ultima|última)\s+oportunidad|last\s+chance`), "urgency copy (last chance)", true},
	{regexp.MustCompile(`(?i)solo\s+por\s+hoy|termina\s+(hoy|pronto)|expira|limited\s+time|act\s+now`), "urgency copy (deadline pressure)", true},
	{regexp.MustCompile(`(?i)(apurate|apúrate|date\s+prisa|hurry)`), "urgency copy (hurry)", true},
	{regexp.MustCompile(`(?i)cupos?\s+limitados?|quedan\s+(pocas|pocos)|only\s+\d+\s+left`), "scarcity copy", true},

	// Price pressure after the customer already committed.
	{regexp.MustCompile(`(?i)descuento|promocion|promoción|rebaja|%\s*off`), "discount copy after confirmation", true},

	// Card data must never be requested over chat, in any state.
	{regexp.MustCompile(`(?i)(numero|número|number)\s+de\s+tarjeta|card\s+number|cvv|codigo\s+de\s+seguridad|código\s+de\s+seguridad`), "requests payment card data", false},
}

// Validator scans outbound copy against the rule table.
type Validator struct {
	rules []contentRule
}

// NewValidator returns a validator with the default rule table.
func NewValidator() *Validator {
	return &Validator{rules: contentRules}
}

// ValidateOutbound checks a candidate message against every rule. It never
// returns an error; the rule table is static and local.
func (v *Validator) ValidateOutbound(_ context.Context, message string, octx gate.OutboundContext) (gate.ValidationResult, error) {
	if strings.TrimSpace(message) == "" {
		return gate.ValidationResult{Allowed: true}, nil
	}

	_, confirmed := confirmedStatuses[strings.ToLower(strings.TrimSpace(octx.Status))]

	var reasons []string
	for _, rule := range v.rules {
		if rule.postConfirmed && !confirmed {
			continue
		}
		if rule.re.MatchString(message) {
			reasons = append(reasons, rule.reason)
		}
	}

	if len(reasons) == 0 {
		return gate.ValidationResult{Allowed: true}, nil
	}
	return gate.ValidationResult{Allowed: false, Reason: strings.Join(reasons, ", ")}, nil
}
