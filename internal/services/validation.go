package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validatePayload runs the struct tags and the checks tags cannot express:
// capital sign and the founders' shares. Every problem is collected.
func validatePayload(v *validator.Validate, p *models.CreateRequestPayload) *models.ValidationError {
	verr := &models.ValidationError{}

	if err := v.Struct(p); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			verr.Add("payload", err.Error())
			return verr
		}
		for _, fe := range fieldErrs {
			verr.Add(fieldPath(fe.Namespace()), fieldMessage(fe))
		}
	}

	if p.Capital.IsNegative() {
		verr.Add("capital", "must not be negative")
	}

	sharesValid := len(p.Founders) > 0
	for i, f := range p.Founders {
		path := fmt.Sprintf("founders[%d]", i)
		switch {
		case !f.SharePercentage.IsPositive():
			verr.Add(path+".sharePercentage", "must be greater than 0")
			sharesValid = false
		case f.SharePercentage.GreaterThan(hundred):
			verr.Add(path+".sharePercentage", "must not exceed 100")
			sharesValid = false
		case !f.SharePercentage.Equal(f.SharePercentage.Round(2)):
			verr.Add(path+".sharePercentage", "must have at most two decimal places")
			sharesValid = false
		}
		if f.IsResident && strings.TrimSpace(f.PersonalNumber) == "" {
			verr.Add(path+".personalNumber", "is required for residents")
		}
	}
	if sharesValid {
		total := decimal.Zero
		for _, f := range p.Founders {
			total = total.Add(f.SharePercentage)
		}
		if !total.Equal(hundred) {
			verr.Add("founders", fmt.Sprintf("shares must sum to exactly 100, got %s", total.String()))
		}
	}
	return verr
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}
