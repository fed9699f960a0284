package signaling

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/learnx/live-backend/internal/translation"
)

var (
	validate   *validator.Validate
	translator ut.Translator

	// custom validation tags
	notBlankTag = "notblank"
	languageTag = "language"
)

func init() {
	validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names so errors name the wire fields.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	_ = validate.RegisterValidation(languageTag, languageValidation)

	registerFn := func(ut.Translator) error { return nil }
	for _, tag := range []string{notBlankTag, languageTag} {
		_ = validate.RegisterTranslation(tag, translator, registerFn, translateCustomErrs)
	}
}

func translateCustomErrs(_ ut.Translator, fe validator.FieldError) string {
	switch fe.Tag() {
	case notBlankTag:
		return fe.Field() + " cannot be blank"
	case languageTag:
		return fe.Field() + " is not a supported language"
	default:
		return ""
	}
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func languageValidation(fl validator.FieldLevel) bool {
	str, ok := fl.Field().Interface().(string)
	return ok && (str == "" || translation.IsSupported(translation.NormalizeLanguage(str)))
}

// validationMessage flattens validator errors into one readable line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(translator))
	}
	return strings.Join(msgs, "; ")
}
