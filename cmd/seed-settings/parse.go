package main

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/shopspring/decimal"
)

type roleAmount struct {
	role   models.Role
	amount decimal.Decimal
}

// parseRoleAmounts reads "role=amount" pairs. An empty string yields the
// built-in defaults for every role.
func parseRoleAmounts(s string) ([]roleAmount, error) {
	if strings.TrimSpace(s) == "" {
		defaults := models.DefaultRoleSalaries()
		out := make([]roleAmount, 0, len(defaults))
		for _, role := range models.AllRoles() {
			out = append(out, roleAmount{role, defaults[role]})
		}
		return out, nil
	}
	var out []roleAmount
	seen := map[models.Role]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid pair %q, want role=amount", part)
		}
		role, err := models.ParseRole(strings.TrimSpace(k))
		if err != nil {
			return nil, err
		}
		if seen[role] {
			return nil, fmt.Errorf("role %s given twice", role)
		}
		seen[role] = true
		amount, err := models.ParseAmount(string(role), v)
		if err != nil {
			return nil, err
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("amount for %s must not be negative", role)
		}
		out = append(out, roleAmount{role, amount})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("--set has no role=amount pairs")
	}
	return out, nil
}
