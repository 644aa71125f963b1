// Package validation wraps go-playground/validator with English messages and
// the date tags used by query structs.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/dates"
)

var (
	once  sync.Once
	v     *validator.Validate
	trans ut.Translator
)

func get() (*validator.Validate, ut.Translator) {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ = uni.GetTranslator("en")

		v = validator.New(validator.WithRequiredStructEnabled())

		// messages use the query parameter name
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := fld.Tag.Get("query")
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("instant", func(fl validator.FieldLevel) bool {
			_, ok := dates.Parse(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("period", func(fl validator.FieldLevel) bool {
			_, ok := dates.PeriodToDays(fl.Field().String())
			return ok
		})

		register(v, trans, "instant", "{0} must be a date (YYYY-MM-DD, DD/MM/YYYY, optionally with time)")
		register(v, trans, "period", "invalid period, expected one of "+strings.Join(dates.PeriodNames(), ", "))
	})
	return v, trans
}

func register(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error { return ut.Add(tag, text, true) },
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field())
			return msg
		},
	)
}

// Struct validates s and returns the first failure as a BadRequest error.
func Struct(s any) *apperror.AppError {
	val, tr := get()
	err := val.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return apperror.New(apperror.BadRequest, verrs[0].Translate(tr))
	}
	return apperror.Wrap(apperror.Internal, "validation failed", err)
}
