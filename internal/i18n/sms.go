package i18n

import "fmt"

// AlertLabel stands in for the confidence label on alert notifications.
const AlertLabel = "Alert"

// PriceSMS is the single-price notification sent on request and when an
// alert fires.
func PriceSMS(crop, market string, price float64, unit, label string) string {
	return fmt.Sprintf("SokoPrice: %s at %s\n%s per %s\nConfidence: %s\nReply STOP to unsubscribe",
		crop, market, FormatPrice(price), unit, label)
}

// SummaryHeader opens the daily digest.
const SummaryHeader = "SokoPrice Daily Summary:"

// SummaryLine is one "Crop@Market: KSh X/unit" digest entry.
func SummaryLine(crop, market string, price float64, unit string) string {
	return fmt.Sprintf("%s@%s: %s/%s", crop, market, FormatPrice(price), unit)
}
