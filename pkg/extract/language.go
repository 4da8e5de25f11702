package extract

import (
	"path"

	"github.com/src-d/enry/v2"
)

// maxSniffSize is the largest blob whose content is read to disambiguate a language.
const maxSniffSize = 16 * 1024

// Language categories.
const (
	CategoryProgramming = "programming"
	CategoryMarkup      = "markup"
	CategoryData        = "data"
	CategoryProse       = "prose"
	CategoryUnknown     = "unknown"
)

// DetectLanguage returns the enry language of name and its category.
// content is consulted only when the name alone is ambiguous; it may
// return nil.
func DetectLanguage(name string, content func() []byte) (lang, category string) {
	base := path.Base(name)

	lang, safe := enry.GetLanguageByFilename(base)
	if !safe {
		lang, safe = enry.GetLanguageByExtension(base)
	}

	if !safe {
		var data []byte
		if content != nil {
			data = content()
		}

		lang = enry.GetLanguage(base, data)
	}

	return lang, Category(lang)
}

// Category maps a language name to its enry type.
func Category(lang string) string {
	if lang == "" {
		return CategoryUnknown
	}

	switch enry.GetLanguageType(lang) {
	case enry.Programming:
		return CategoryProgramming
	case enry.Markup:
		return CategoryMarkup
	case enry.Data:
		return CategoryData
	case enry.Prose:
		return CategoryProse
	default:
		return CategoryUnknown
	}
}
