package workflow

import (
	"sort"
	"strings"

	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/utils"
)

// validateInput runs struct tags through the shared validator and folds the
// result into a single ValidationError.
func validateInput(in any) error {
	err := utils.GetValidator().Struct(in)
	if err == nil {
		return nil
	}
	fields := utils.ProcessValidationErrors(err)
	if len(fields) == 0 {
		return models.NewValidationError("", err.Error())
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" failed "+fields[name])
	}
	return models.NewValidationError(strings.ToLower(names[0]), strings.Join(parts, "; "))
}
