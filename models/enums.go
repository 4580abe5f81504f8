package models

import "strings"

type Role string

const (
	RoleAdmin            Role = "admin"
	RoleSupervisor       Role = "supervisor"
	RoleSupervisorTeller Role = "supervisor_teller"
	RoleTeller           Role = "teller"
)

var roleRank = map[Role]int{
	RoleTeller:           1,
	RoleSupervisorTeller: 2,
	RoleSupervisor:       3,
	RoleAdmin:            4,
}

func (r Role) IsValid() bool {
	_, ok := roleRank[r]
	return ok
}

// Satisfies reports whether r is at least as privileged as required.
func (r Role) Satisfies(required Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	need, ok := roleRank[required]
	if !ok {
		return false
	}
	return have >= need
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", NewValidationError("role", "unknown role "+s)
	}
	return r, nil
}

func AllRoles() []Role {
	return []Role{RoleAdmin, RoleSupervisor, RoleSupervisorTeller, RoleTeller}
}

// LockState is the approval lifecycle of a payroll record: Draft -> Approved -> Locked.
type LockState string

const (
	LockStateDraft    LockState = "draft"
	LockStateApproved LockState = "approved"
	LockStateLocked   LockState = "locked"
)

// SameDayPolicy folds several shift reports of one employee-day into one payroll row.
type SameDayPolicy string

const (
	// SameDayPolicyFlag refuses to guess: the day is reported as ambiguous and not written.
	SameDayPolicyFlag   SameDayPolicy = "flag"
	SameDayPolicySum    SameDayPolicy = "sum"
	SameDayPolicyLatest SameDayPolicy = "latest"
)

func ParseSameDayPolicy(s string) (SameDayPolicy, error) {
	switch p := SameDayPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case SameDayPolicyFlag, SameDayPolicySum, SameDayPolicyLatest:
		return p, nil
	case "":
		return SameDayPolicyFlag, nil
	}
	return "", NewValidationError("same_day_policy", "unknown policy "+s)
}

type UpsertOutcome string

const (
	UpsertCreated       UpsertOutcome = "created"
	UpsertUpdated       UpsertOutcome = "updated"
	UpsertUnchanged     UpsertOutcome = "unchanged"
	UpsertSkippedLocked UpsertOutcome = "skipped_locked"
)

type PayrollEventType string

const (
	PayrollEventCreated        PayrollEventType = "PAYROLL_CREATED"
	PayrollEventSourceUpdated  PayrollEventType = "PAYROLL_SOURCE_UPDATED"
	PayrollEventTotalCorrected PayrollEventType = "PAYROLL_TOTAL_CORRECTED"
	PayrollEventAdjusted       PayrollEventType = "PAYROLL_ADJUSTED"
	PayrollEventApproved       PayrollEventType = "PAYROLL_APPROVED"
	PayrollEventLocked         PayrollEventType = "PAYROLL_LOCKED"
	PayrollEventBaseSalarySet  PayrollEventType = "PAYROLL_BASE_SALARY_SET"

	PayrollEventWithdrawalRequested PayrollEventType = "PAYROLL_WITHDRAWAL_REQUESTED"
	PayrollEventWithdrawalApproved  PayrollEventType = "PAYROLL_WITHDRAWAL_APPROVED"
	PayrollEventWithdrawalRejected  PayrollEventType = "PAYROLL_WITHDRAWAL_REJECTED"

	PayrollEventShortPlanCreated   PayrollEventType = "PAYROLL_SHORT_PLAN_CREATED"
	PayrollEventShortInstallment   PayrollEventType = "PAYROLL_SHORT_INSTALLMENT_RECORDED"
	PayrollEventShortPlanCancelled PayrollEventType = "PAYROLL_SHORT_PLAN_CANCELLED"
)

type AuditActionType string

const (
	AuditActionUpdateBaseSalary AuditActionType = "UPDATE_BASE_SALARY"
	AuditActionBatchUpdate      AuditActionType = "BATCH_UPDATE"
	AuditActionManualEntry      AuditActionType = "MANUAL_ENTRY"
	AuditActionLegacyImport     AuditActionType = "LEGACY_IMPORT"
	AuditActionWithdrawal       AuditActionType = "WITHDRAWAL_APPROVED"
)

type WithdrawalStatus string

const (
	WithdrawalStatusPending  WithdrawalStatus = "pending"
	WithdrawalStatusApproved WithdrawalStatus = "approved"
	WithdrawalStatusRejected WithdrawalStatus = "rejected"
)

func (s WithdrawalStatus) IsValid() bool {
	switch s {
	case WithdrawalStatusPending, WithdrawalStatusApproved, WithdrawalStatusRejected:
		return true
	}
	return false
}

type ShortPlanStatus string

const (
	ShortPlanStatusActive    ShortPlanStatus = "active"
	ShortPlanStatusCompleted ShortPlanStatus = "completed"
	ShortPlanStatusCancelled ShortPlanStatus = "cancelled"
)

func (s ShortPlanStatus) IsValid() bool {
	switch s {
	case ShortPlanStatusActive, ShortPlanStatusCompleted, ShortPlanStatusCancelled:
		return true
	}
	return false
}
