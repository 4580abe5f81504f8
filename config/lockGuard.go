package config

import (
	"strings"

	"github.com/mmdatafocus/payroll_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const lockedColumn = "locked"

// LockGuardPlugin keeps locked rows immutable by scoping every update and
// delete on a model with a `locked` column to `locked = false`.
//
// NOTE:
// - Raw SQL is not covered. Raw writes must filter on locked themselves.
// - An administrative unlock bypasses the guard explicitly via context.
type LockGuardPlugin struct{}

func NewLockGuardPlugin() *LockGuardPlugin { return &LockGuardPlugin{} }

func (p *LockGuardPlugin) Name() string { return "lock_guard" }

func (p *LockGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("lock_guard:update", lockGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("lock_guard:delete", lockGuardCallback); err != nil {
		return err
	}
	return nil
}

func lockGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil {
		return
	}
	if appctx.GetBool(db.Statement.Context, appctx.ContextKeyBypassLockGuard) {
		return
	}
	if db.Statement.Schema.LookUpField(lockedColumn) == nil {
		return
	}
	// An explicit filter on locked already decides which rows may change.
	if whereHasLocked(db.Statement.Clauses["WHERE"]) {
		return
	}
	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: lockedColumn},
				Value:  false,
			},
		},
	})
}

func whereHasLocked(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasLocked(e) {
			return true
		}
	}
	return false
}

func exprHasLocked(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsLocked(v.Column)
	case clause.Neq:
		return colIsLocked(v.Column)
	case clause.IN:
		return colIsLocked(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasLocked(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasLocked(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		return rawMentionsLocked(v.SQL)
	case clause.NamedExpr:
		return rawMentionsLocked(v.SQL)
	default:
		return false
	}
}

// rawMentionsLocked matches the bare column, not locked_at / locked_by.
func rawMentionsLocked(sql string) bool {
	for _, tok := range strings.FieldsFunc(strings.ToLower(sql), func(r rune) bool {
		return !(r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	}) {
		if tok == lockedColumn || strings.HasSuffix(tok, "."+lockedColumn) {
			return true
		}
	}
	return false
}

func colIsLocked(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, lockedColumn)
	case clause.Column:
		return strings.EqualFold(c.Name, lockedColumn)
	default:
		return false
	}
}
