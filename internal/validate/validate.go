package validate

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Validator wraps go-playground/validator with English translations so
// rejected fields come back as human-readable messages keyed by JSON name.
type Validator struct {
	v     *govalidator.Validate
	trans ut.Translator
}

// New creates a configured Validator.
func New() *Validator {
	v := govalidator.New()

	// Use JSON tag name for field names in error messages.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	return &Validator{v: v, trans: trans}
}

// Struct validates s against its `validate` tags. Returns nil when valid,
// otherwise a map of field name → translated message.
func (val *Validator) Struct(s interface{}) map[string]string {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	fields := make(map[string]string)
	if ve, ok := err.(govalidator.ValidationErrors); ok {
		for _, fe := range ve {
			fields[fe.Field()] = fe.Translate(val.trans)
		}
		return fields
	}

	fields["detail"] = err.Error()
	return fields
}
