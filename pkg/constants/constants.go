package constants

import (
	"errors"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

type ContextKey string

const (
	LoggerKey    ContextKey = "logger"
	RequestStart ContextKey = "request_start"
	RequestID    ContextKey = "request_id"
)

var (
	Validate   = validator.New(validator.WithRequiredStructEnabled())
	Translator = newTranslator(Validate)
)

func newTranslator(v *validator.Validate) ut.Translator {
	english := en.New()
	trans, _ := ut.New(english, english).GetTranslator("en")
	if err := entranslations.RegisterDefaultTranslations(v, trans); err != nil {
		panic(err)
	}
	return trans
}

// ValidationMessages renders validator errors as English sentences. Other
// errors are returned as is.
func ValidationMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fe.Translate(Translator))
	}
	return out
}
