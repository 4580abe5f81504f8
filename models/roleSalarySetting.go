package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoleSalarySetting is the default base salary for a role.
type RoleSalarySetting struct {
	Role       Role            `gorm:"primaryKey;size:32" json:"role"`
	BaseSalary decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"base_salary"`
	UpdatedBy  string          `gorm:"size:64" json:"updated_by"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultRoleSalaries are the seed values used by cmd/seed-settings.
func DefaultRoleSalaries() map[Role]decimal.Decimal {
	return map[Role]decimal.Decimal{
		RoleAdmin:            decimal.NewFromInt(1000),
		RoleSupervisor:       decimal.NewFromInt(600),
		RoleSupervisorTeller: decimal.NewFromInt(600),
		RoleTeller:           decimal.NewFromInt(450),
	}
}
