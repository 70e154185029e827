package render

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/shopspring/decimal"
)

// ValidateData checks a data record against a template's declared
// variables. Every problem is reported in one *models.ValidationError.
// Undeclared keys are allowed.
func ValidateData(vars map[string]models.Variable, data map[string]any) error {
	verr := &models.ValidationError{}
	for _, name := range sortedKeys(vars) {
		value, present := data[name]
		checkValue(name, vars[name], value, present, verr)
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func checkValue(path string, decl models.Variable, value any, present bool, verr *models.ValidationError) {
	if !present || value == nil {
		if decl.Required {
			verr.Add(path, "is required")
		}
		return
	}

	switch decl.Type {
	case models.VarString:
		s, ok := value.(string)
		if !ok {
			verr.Add(path, "must be a string")
			return
		}
		if decl.Required && strings.TrimSpace(s) == "" {
			verr.Add(path, "is required")
		}
	case models.VarNumber:
		if !isNumber(value) {
			verr.Add(path, "must be a number")
		}
	case models.VarBoolean:
		if _, ok := value.(bool); !ok {
			verr.Add(path, "must be a boolean")
		}
	case models.VarList:
		items, ok := value.([]any)
		if !ok {
			verr.Add(path, "must be a list")
			return
		}
		if decl.Required && len(items) == 0 {
			verr.Add(path, "must not be empty")
			return
		}
		if len(decl.Fields) == 0 {
			return
		}
		for i, item := range items {
			checkObject(fmt.Sprintf("%s[%d]", path, i), decl.Fields, item, verr)
		}
	case models.VarObject:
		checkObject(path, decl.Fields, value, verr)
	}
}

func checkObject(path string, fields map[string]models.Variable, value any, verr *models.ValidationError) {
	obj, ok := value.(map[string]any)
	if !ok {
		verr.Add(path, "must be an object")
		return
	}
	for _, name := range sortedKeys(fields) {
		v, present := obj[name]
		checkValue(path+"."+name, fields[name], v, present, verr)
	}
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float64, float32, int, int32, int64, json.Number, decimal.Decimal:
		return true
	case string:
		_, err := decimal.NewFromString(v)
		return err == nil
	}
	return false
}

func sortedKeys(m map[string]models.Variable) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
