// Package services – localized failure messages.
//
// A failed reading stores a user-facing, non-technical message in the locale
// captured at submission. The matcher falls back to English for unsupported
// tags, so a failed reading always carries some message.
package services

import "golang.org/x/text/language"

// supportedLocales lists the locales we ship failure messages for. English
// must stay first: it is the matcher fallback.
var supportedLocales = []language.Tag{
	language.English,
	language.Spanish,
	language.French,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// failureMessages maps failure codes to per-locale user-facing text. The text
// is intentionally non-technical; operators get the structured PipelineError
// in logs instead.
var failureMessages = map[string]map[string]string{
	CodeValidation: {
		"en": "We couldn't process your question. Please ask one clear question at a time.",
		"es": "No pudimos procesar tu pregunta. Haz una sola pregunta clara a la vez.",
		"fr": "Nous n'avons pas pu traiter votre question. Posez une seule question claire à la fois.",
	},
	CodeProvider: {
		"en": "Your reading couldn't be completed right now. Your credit has been returned.",
		"es": "Tu lectura no pudo completarse en este momento. Tu crédito ha sido devuelto.",
		"fr": "Votre lecture n'a pas pu être réalisée pour le moment. Votre crédit a été remboursé.",
	},
	CodeParse: {
		"en": "Your reading couldn't be completed right now. Your credit has been returned.",
		"es": "Tu lectura no pudo completarse en este momento. Tu crédito ha sido devuelto.",
		"fr": "Votre lecture n'a pas pu être réalisée pour le moment. Votre crédit a été remboursé.",
	},
	CodeStalled: {
		"en": "Your reading took too long and was cancelled. Your credit has been returned.",
		"es": "Tu lectura tardó demasiado y fue cancelada. Tu crédito ha sido devuelto.",
		"fr": "Votre lecture a pris trop de temps et a été annulée. Votre crédit a été remboursé.",
	},
}

// genericFailure is used for codes without a dedicated message.
var genericFailure = map[string]string{
	"en": "Something went wrong with your reading. Your credit has been returned.",
	"es": "Algo salió mal con tu lectura. Tu crédito ha sido devuelto.",
	"fr": "Un problème est survenu avec votre lecture. Votre crédit a été remboursé.",
}

// FailureMessage returns the user-facing message for a failure code in the
// best-matching supported locale.
func FailureMessage(locale, code string) string {
	tag, _ := language.MatchStrings(localeMatcher, locale)
	base, _ := tag.Base()
	lang := base.String()

	msgs, ok := failureMessages[code]
	if !ok {
		msgs = genericFailure
	}
	if m, ok := msgs[lang]; ok {
		return m
	}
	return msgs["en"]
}
