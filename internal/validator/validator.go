package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// FieldErrors maps a request field (its json or form name) to a message.
type FieldErrors map[string]string

var trans ut.Translator

// messages override the stock English text for tags students actually hit.
var messages = map[string]string{
	"uuid":        "{0} must be a valid test ID",
	"required_if": "{0} is required for this content type",
}

// Setup installs field naming and English messages on Gin's validator.
// Call once at startup, before the router serves traffic.
func Setup() error {
	v, ok := binding.Validator.Engine().(*govalidator.Validate)
	if !ok {
		return errors.New("validator: unexpected binding engine")
	}
	v.RegisterTagNameFunc(fieldName)

	locale := en.New()
	trans, _ = ut.New(locale, locale).GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return fmt.Errorf("validator: register translations: %w", err)
	}
	for tag, text := range messages {
		err := v.RegisterTranslation(tag, trans,
			func(ut ut.Translator) error { return ut.Add(tag, text, true) },
			func(ut ut.Translator, fe govalidator.FieldError) string {
				msg, _ := ut.T(fe.Tag(), fe.Field())
				return msg
			})
		if err != nil {
			return fmt.Errorf("validator: override %s: %w", tag, err)
		}
	}
	return nil
}

func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(fld.Tag.Get(tag), ",")
		switch name {
		case "":
			continue
		case "-":
			return ""
		default:
			return name
		}
	}
	return fld.Name
}

// Translate turns a binding error into per-field messages. Errors that are
// not validation failures (malformed JSON, a bad multipart body) land under
// "detail".
func Translate(err error) FieldErrors {
	var ve govalidator.ValidationErrors
	if !errors.As(err, &ve) {
		return FieldErrors{"detail": err.Error()}
	}
	fields := make(FieldErrors, len(ve))
	for _, fe := range ve {
		if trans == nil {
			fields[fe.Field()] = fe.Error()
			continue
		}
		fields[fe.Field()] = fe.Translate(trans)
	}
	return fields
}

// BindJSON decodes and validates a JSON body. A nil result means dst is valid.
func BindJSON(c *gin.Context, dst any) FieldErrors {
	if err := c.ShouldBindJSON(dst); err != nil {
		return Translate(err)
	}
	return nil
}
