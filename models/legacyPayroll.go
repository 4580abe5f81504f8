package models

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	legacyImportActor      = "legacy-import"
	legacyAdjustmentReason = "legacy adjustment (no reason recorded)"
	legacyMaxLineBytes     = 4 << 20
)

// LegacyPayrollDoc is one document of the schema-less payroll collection as
// exported with mongoexport (canonical or relaxed extended JSON).
type LegacyPayrollDoc struct {
	Id                legacyObjectId     `json:"_id"`
	User              legacyObjectId     `json:"user"`
	SupervisorId      legacyObjectId     `json:"supervisorId"`
	Role              string             `json:"role"`
	BaseSalary        legacyNumber       `json:"baseSalary"`
	TotalSalary       legacyNumber       `json:"totalSalary"`
	Deduction         legacyNumber       `json:"deduction"`
	Over              legacyNumber       `json:"over"`
	Short             legacyNumber       `json:"short"`
	Withdrawal        legacyNumber       `json:"withdrawal"`
	ShortPaymentTerms legacyNumber       `json:"shortPaymentTerms"`
	Approved          bool               `json:"approved"`
	Locked            bool               `json:"locked"`
	ApprovedAt        legacyTime         `json:"approvedAt"`
	LockedAt          legacyTime         `json:"lockedAt"`
	Date              string             `json:"date"`
	CreatedAt         legacyTime         `json:"createdAt"`
	Adjustments       []legacyAdjustment `json:"adjustments"`
}

type legacyAdjustment struct {
	Delta     legacyNumber   `json:"delta"`
	Reason    string         `json:"reason"`
	AdminId   legacyObjectId `json:"adminId"`
	CreatedAt legacyTime     `json:"createdAt"`
}

// legacyObjectId accepts "abc" or {"$oid":"abc"}.
type legacyObjectId string

func (id *legacyObjectId) UnmarshalJSON(b []byte) error {
	if isJSONNull(b) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = legacyObjectId(strings.TrimSpace(s))
		return nil
	}
	var wrapped struct {
		Oid string `json:"$oid"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return fmt.Errorf("object id: %w", err)
	}
	*id = legacyObjectId(strings.TrimSpace(wrapped.Oid))
	return nil
}

// legacyNumber accepts plain numbers, numeric strings and the
// $numberInt/$numberLong/$numberDouble/$numberDecimal wrappers.
type legacyNumber struct {
	Value decimal.Decimal
	Set   bool
}

func (n *legacyNumber) UnmarshalJSON(b []byte) error {
	if isJSONNull(b) {
		*n = legacyNumber{}
		return nil
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var wrapped map[string]string
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return fmt.Errorf("number: %w", err)
		}
		for _, k := range []string{"$numberDecimal", "$numberDouble", "$numberLong", "$numberInt"} {
			if raw, ok := wrapped[k]; ok {
				return n.parse(raw)
			}
		}
		return fmt.Errorf("number: unsupported wrapper %s", string(b))
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*n = legacyNumber{}
			return nil
		}
		return n.parse(s)
	}
	return n.parse(string(b))
}

func (n *legacyNumber) parse(raw string) error {
	d, err := ParseAmount("number", raw)
	if err != nil {
		return err
	}
	n.Value = d
	n.Set = true
	return nil
}

func (n legacyNumber) Or(def decimal.Decimal) decimal.Decimal {
	if !n.Set {
		return def
	}
	return n.Value
}

// legacyTime accepts an RFC 3339 string, epoch milliseconds, or the $date
// wrapper around either.
type legacyTime struct {
	time.Time
}

func (t *legacyTime) UnmarshalJSON(b []byte) error {
	if isJSONNull(b) {
		t.Time = time.Time{}
		return nil
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var wrapped struct {
			Date json.RawMessage `json:"$date"`
		}
		if err := json.Unmarshal(b, &wrapped); err != nil {
			return fmt.Errorf("date: %w", err)
		}
		if len(wrapped.Date) > 0 && wrapped.Date[0] == '{' {
			var long struct {
				NumberLong string `json:"$numberLong"`
			}
			if err := json.Unmarshal(wrapped.Date, &long); err != nil {
				return fmt.Errorf("date: %w", err)
			}
			return t.fromMillis(long.NumberLong)
		}
		return t.UnmarshalJSON(wrapped.Date)
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("date %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	return t.fromMillis(string(b))
}

func (t *legacyTime) fromMillis(raw string) error {
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("date millis %q: %w", raw, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t legacyTime) ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func isJSONNull(b []byte) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

// ConvertLegacyPayroll maps a legacy document onto a current-schema
// PayrollRecord. The stored total is kept as found so a later reconcile
// pass surfaces any drift. Returned notes describe values that were
// repaired on the way in.
func ConvertLegacyPayroll(doc *LegacyPayrollDoc) (*PayrollRecord, []string, error) {
	var notes []string

	employeeId := string(doc.User)
	if employeeId == "" {
		employeeId = string(doc.SupervisorId)
	}
	if employeeId == "" {
		return nil, nil, NewValidationError("user", "legacy payroll has no employee reference")
	}

	var businessDate string
	switch {
	case strings.TrimSpace(doc.Date) != "":
		d, err := ParseBusinessDate(doc.Date)
		if err != nil {
			return nil, nil, err
		}
		businessDate = d
	case !doc.CreatedAt.IsZero():
		businessDate = BusinessDateOf(doc.CreatedAt.Time)
		notes = append(notes, "business date derived from createdAt")
	default:
		return nil, nil, NewValidationError("date", "legacy payroll has neither date nor createdAt")
	}

	var role Role
	if strings.TrimSpace(doc.Role) != "" {
		r, err := ParseRole(doc.Role)
		if err != nil {
			notes = append(notes, fmt.Sprintf("unknown role %q dropped", doc.Role))
		} else {
			role = r
		}
	} else if doc.SupervisorId != "" {
		role = RoleSupervisor
	}

	terms := 1
	if doc.ShortPaymentTerms.Set {
		terms = int(doc.ShortPaymentTerms.Value.IntPart())
		if terms < 1 {
			notes = append(notes, fmt.Sprintf("shortPaymentTerms %d clamped to 1", terms))
			terms = 1
		}
	}

	rec := &PayrollRecord{
		SchemaVersion:     PayrollRecordSchemaVersion,
		EmployeeId:        employeeId,
		BusinessDate:      businessDate,
		Role:              role,
		BaseSalary:        RoundMoney(doc.BaseSalary.Or(decimal.Zero)),
		Over:              RoundMoney(doc.Over.Or(decimal.Zero)),
		Short:             RoundMoney(doc.Short.Or(decimal.Zero).Abs()),
		Deduction:         RoundMoney(doc.Deduction.Or(decimal.Zero)),
		Withdrawal:        RoundMoney(doc.Withdrawal.Or(decimal.Zero)),
		ShortPaymentTerms: terms,
		TotalSalary:       RoundMoney(doc.TotalSalary.Or(decimal.Zero)),
		Approved:          doc.Approved || doc.Locked,
		Locked:            doc.Locked,
		Version:           1,
	}
	if doc.Short.Set && doc.Short.Value.IsNegative() {
		notes = append(notes, "negative short stored as magnitude")
	}
	if doc.Locked && !doc.Approved {
		notes = append(notes, "locked record marked approved")
	}
	if rec.Approved {
		rec.ApprovedBy = stringPtr(legacyImportActor)
		rec.ApprovedAt = doc.ApprovedAt.ptr()
	}
	if rec.Locked {
		rec.LockedBy = stringPtr(legacyImportActor)
		rec.LockedAt = doc.LockedAt.ptr()
	}

	for i, a := range doc.Adjustments {
		delta := RoundMoney(a.Delta.Or(decimal.Zero))
		if delta.IsZero() {
			notes = append(notes, fmt.Sprintf("adjustment %d with zero delta skipped", i))
			continue
		}
		reason := strings.TrimSpace(a.Reason)
		if reason == "" {
			reason = legacyAdjustmentReason
		}
		actor := string(a.AdminId)
		if actor == "" {
			actor = legacyImportActor
		}
		createdAt := a.CreatedAt.Time
		if createdAt.IsZero() {
			createdAt = doc.CreatedAt.Time
		}
		rec.Adjustments = append(rec.Adjustments, &Adjustment{
			Delta:     delta,
			Reason:    reason,
			Actor:     actor,
			CreatedAt: createdAt,
		})
	}
	return rec, notes, nil
}

type LegacyImportIssue struct {
	Line         int    `json:"line"`
	LegacyId     string `json:"legacy_id"`
	EmployeeId   string `json:"employee_id,omitempty"`
	BusinessDate string `json:"business_date,omitempty"`
	Message      string `json:"message"`
}

type LegacyImportReport struct {
	Imported   int                 `json:"imported"`
	Duplicates []LegacyImportIssue `json:"duplicates"`
	Failed     []LegacyImportIssue `json:"failed"`
	Notes      []LegacyImportIssue `json:"notes"`
}

// MigrateLegacyPayrolls reads one legacy document per line and inserts it
// through the (employee, date) unique key. Collisions are reported as
// duplicates for manual review rather than merged. With dryRun set nothing
// is written.
func MigrateLegacyPayrolls(ctx context.Context, store *PayrollStore, r io.Reader, actor string, dryRun bool) (*LegacyImportReport, error) {
	if actor == "" {
		actor = legacyImportActor
	}
	report := &LegacyImportReport{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), legacyMaxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		var doc LegacyPayrollDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			report.Failed = append(report.Failed, LegacyImportIssue{Line: line, Message: err.Error()})
			continue
		}
		rec, notes, err := ConvertLegacyPayroll(&doc)
		if err != nil {
			report.Failed = append(report.Failed, LegacyImportIssue{Line: line, LegacyId: string(doc.Id), Message: err.Error()})
			continue
		}
		for _, n := range notes {
			report.Notes = append(report.Notes, LegacyImportIssue{
				Line: line, LegacyId: string(doc.Id), EmployeeId: rec.EmployeeId, BusinessDate: rec.BusinessDate, Message: n,
			})
		}
		if dryRun {
			report.Imported++
			continue
		}

		rec.RecordAudit(&PayrollAuditLog{
			ActionType:  AuditActionLegacyImport,
			PerformedBy: actor,
			Role:        rec.Role,
			ValueBefore: rec.TotalSalary,
			ValueAfter:  rec.TotalSalary,
			Reason:      "imported legacy payroll " + string(doc.Id),
		})
		err = store.CreateManual(ctx, rec)
		switch {
		case err == nil:
			report.Imported++
		case errors.Is(err, ErrUniqueConstraintConflict):
			report.Duplicates = append(report.Duplicates, LegacyImportIssue{
				Line: line, LegacyId: string(doc.Id), EmployeeId: rec.EmployeeId, BusinessDate: rec.BusinessDate, Message: err.Error(),
			})
		default:
			report.Failed = append(report.Failed, LegacyImportIssue{
				Line: line, LegacyId: string(doc.Id), EmployeeId: rec.EmployeeId, BusinessDate: rec.BusinessDate, Message: err.Error(),
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func stringPtr(s string) *string {
	return &s
}
