package models

import (
	"gorm.io/gorm"
)

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(
		&Employee{}, &RoleSalarySetting{}, &ShiftReport{},
		&PayrollRecord{}, &Adjustment{},
		&PayrollAuditLog{}, &PayrollEvent{},
		&ReconciliationReport{},
		&Withdrawal{}, &WithdrawalItem{},
		&ShortPaymentPlan{}, &ShortPaymentInstallment{},
	)
}
