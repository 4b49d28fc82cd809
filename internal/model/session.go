package model

// Language is a USSD display language.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageSwahili Language = "sw"
)

// DefaultLanguage is used whenever no preference is known.
const DefaultLanguage = LanguageEnglish

// ParseLanguage returns the language for code, or DefaultLanguage.
func ParseLanguage(code string) Language {
	if Language(code) == LanguageSwahili {
		return LanguageSwahili
	}
	return LanguageEnglish
}
