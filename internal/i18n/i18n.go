// Package i18n holds the English and Swahili texts shown on the USSD channel
// and in SMS messages.
package i18n

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sells-group/sokoprice/internal/confidence"
	"github.com/sells-group/sokoprice/internal/model"
)

// Key identifies a localized message.
type Key string

const (
	Welcome             Key = "welcome"
	SelectCrop          Key = "select_crop"
	SelectMarket        Key = "select_market"
	EnterPrice          Key = "enter_price"
	ConfirmSubmission   Key = "confirm_submission"
	SubmissionSuccess   Key = "submission_success"
	SubmissionCancelled Key = "submission_cancelled"
	SelectLanguage      Key = "select_language"
	LanguageSet         Key = "language_set"
	InvalidInput        Key = "invalid_input"
	NoPriceData         Key = "no_price_data"
	GetSMS              Key = "get_sms"
	SMSSent             Key = "sms_sent"
	ConfidenceWord      Key = "confidence"
	Updated             Key = "updated"
	Per                 Key = "per"
	GenericError        Key = "generic_error"
	JustNow             Key = "just_now"
	Today               Key = "today"
)

var messages = map[Key]map[model.Language]string{
	Welcome: {
		model.LanguageEnglish: "Welcome to SokoPrice 🌾\n1. Check market prices\n2. Submit today's price\n3. Language (Lugha)",
		model.LanguageSwahili: "Karibu SokoPrice 🌾\n1. Angalia bei za soko\n2. Tuma bei ya leo\n3. Language (Lugha)",
	},
	SelectCrop: {
		model.LanguageEnglish: "Select crop:",
		model.LanguageSwahili: "Chagua mazao:",
	},
	SelectMarket: {
		model.LanguageEnglish: "Select market:",
		model.LanguageSwahili: "Chagua soko:",
	},
	EnterPrice: {
		model.LanguageEnglish: "Enter price in KSh:",
		model.LanguageSwahili: "Ingiza bei kwa KSh:",
	},
	ConfirmSubmission: {
		model.LanguageEnglish: "Confirm submission?\n1. Yes\n2. No",
		model.LanguageSwahili: "Thibitisha kutuma?\n1. Ndio\n2. Hapana",
	},
	SubmissionSuccess: {
		model.LanguageEnglish: "Thank you! Price submitted for review.",
		model.LanguageSwahili: "Asante! Bei imetumwa kwa ukaguzi.",
	},
	SubmissionCancelled: {
		model.LanguageEnglish: "Submission cancelled.",
		model.LanguageSwahili: "Utumaji umesitishwa.",
	},
	SelectLanguage: {
		model.LanguageEnglish: "Select language:\n1. English\n2. Kiswahili",
		model.LanguageSwahili: "Chagua lugha:\n1. English\n2. Kiswahili",
	},
	LanguageSet: {
		model.LanguageEnglish: "Language set to English",
		model.LanguageSwahili: "Lugha imewekwa Kiswahili",
	},
	InvalidInput: {
		model.LanguageEnglish: "Invalid selection. Please try again.",
		model.LanguageSwahili: "Chaguo batili. Tafadhali jaribu tena.",
	},
	NoPriceData: {
		model.LanguageEnglish: "No price data available for this selection.",
		model.LanguageSwahili: "Hakuna data ya bei kwa chaguo hili.",
	},
	GetSMS: {
		model.LanguageEnglish: "1. Get SMS copy\n0. Back",
		model.LanguageSwahili: "1. Pata nakala ya SMS\n0. Rudi",
	},
	SMSSent: {
		model.LanguageEnglish: "SMS sent to your phone!",
		model.LanguageSwahili: "SMS imetumwa kwa simu yako!",
	},
	ConfidenceWord: {
		model.LanguageEnglish: "Confidence",
		model.LanguageSwahili: "Uhakika",
	},
	Updated: {
		model.LanguageEnglish: "Updated",
		model.LanguageSwahili: "Imesasishwa",
	},
	Per: {
		model.LanguageEnglish: "per",
		model.LanguageSwahili: "kwa",
	},
	GenericError: {
		model.LanguageEnglish: "An error occurred. Please try again.",
		model.LanguageSwahili: "Hitilafu imetokea. Tafadhali jaribu tena.",
	},
	JustNow: {
		model.LanguageEnglish: "Just now",
		model.LanguageSwahili: "Sasa hivi",
	},
	Today: {
		model.LanguageEnglish: "Today",
		model.LanguageSwahili: "Leo",
	},
}

var tierLabels = map[confidence.Tier]map[model.Language]string{
	confidence.TierHigh:   {model.LanguageEnglish: "High", model.LanguageSwahili: "Juu"},
	confidence.TierMedium: {model.LanguageEnglish: "Medium", model.LanguageSwahili: "Wastani"},
	confidence.TierLow:    {model.LanguageEnglish: "Low", model.LanguageSwahili: "Chini"},
}

// T resolves key in lang, falling back to English and then to the key itself.
func T(key Key, lang model.Language) string {
	m, ok := messages[key]
	if !ok {
		return string(key)
	}
	if s, ok := m[lang]; ok && s != "" {
		return s
	}
	return m[model.LanguageEnglish]
}

// TierLabel localizes a confidence tier.
func TierLabel(tier confidence.Tier, lang model.Language) string {
	m, ok := tierLabels[tier]
	if !ok {
		m = tierLabels[confidence.TierLow]
	}
	if s, ok := m[lang]; ok {
		return s
	}
	return m[model.LanguageEnglish]
}

// ConfidenceLabel maps score through the shared tier table to a localized label.
func ConfidenceLabel(score float64, th confidence.Thresholds, lang model.Language) string {
	return TierLabel(th.Tier(score), lang)
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders a number with thousands separators and at most two
// decimals, e.g. 3,500 or 1,250.5.
func FormatAmount(v float64) string {
	return printer.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
}

// FormatPrice renders an amount in Kenyan shillings, e.g. "KSh 3,500".
func FormatPrice(v float64) string {
	return "KSh " + FormatAmount(v)
}

// FormatUpdated renders how recent a report is: "Just now" within the hour,
// "Today 15:04" within a day, otherwise "Jan 2". Times are shown in loc.
func FormatUpdated(at, now time.Time, loc *time.Location, lang model.Language) string {
	if loc == nil {
		loc = time.UTC
	}
	age := now.Sub(at)
	switch {
	case age < time.Hour:
		return T(JustNow, lang)
	case age < 24*time.Hour:
		return fmt.Sprintf("%s %s", T(Today, lang), at.In(loc).Format("15:04"))
	default:
		return at.In(loc).Format("Jan 2")
	}
}

// Menu renders a header followed by 1-based numbered options.
func Menu(header string, options []string) string {
	var b strings.Builder
	b.WriteString(header)
	for i, opt := range options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	return b.String()
}
