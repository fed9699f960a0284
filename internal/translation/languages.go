package translation

import (
	"errors"
	"sort"
	"strings"
)

// AutoDetect lets the provider guess the source language. Only accepted as a source.
const AutoDetect = "auto"

var (
	ErrEmptyText           = errors.New("text is required")
	ErrTextTooLong         = errors.New("text too long")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

var supportedLanguages = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"ta": "Tamil",
	"te": "Telugu",
	"kn": "Kannada",
	"ml": "Malayalam",
	"bn": "Bengali",
	"gu": "Gujarati",
	"mr": "Marathi",
	"pa": "Punjabi",
	"or": "Odia",
	"as": "Assamese",
	"ur": "Urdu",
	"sa": "Sanskrit",
}

// Language is a supported language code with its display name.
type Language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Languages returns the supported languages sorted by code.
func Languages() []Language {
	out := make([]Language, 0, len(supportedLanguages))
	for code, name := range supportedLanguages {
		out = append(out, Language{Code: code, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// IsSupported reports whether code is a supported language.
func IsSupported(code string) bool {
	_, ok := supportedLanguages[code]
	return ok
}

// LanguageName returns the English name for code, or code itself when unknown.
func LanguageName(code string) string {
	if name, ok := supportedLanguages[code]; ok {
		return name
	}
	return code
}

// NormalizeLanguage lower-cases a tag and strips the region ("hi-IN" -> "hi").
func NormalizeLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return code
}
