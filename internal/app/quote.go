/**
 * @description
 * Quote engine: prices a validated form against a membership type configuration and
 * builds the UPI payment payload the client renders as a QR code.
 */
package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gart/membership-service/internal/domain"
)

// Quote is the price and validity window offered for an application.
type Quote struct {
	MembershipType domain.Category `json:"membershipType"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Region         domain.Region   `json:"region"`
	RemainingYears int             `json:"remainingYears,omitempty"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	QRPayload      string          `json:"qrPayload,omitempty"`
}

// CalculateQuote prices form under cfg. The validity window starts on the UTC calendar
// date of now, so the same inputs on the same day always yield the same quote.
func CalculateQuote(cfg domain.MembershipTypeConfig, form domain.ApplicationForm, now time.Time) Quote {
	region := ClassifyRegion(form.Country())
	today := calendarDate(now)

	q := Quote{
		MembershipType: cfg.Code,
		Region:         region,
		StartDate:      today,
	}

	if student, ok := form.(domain.StudentForm); ok {
		years := student.RemainingYears()
		q.RemainingYears = years
		q.Amount, q.Currency = 0, DomesticCurrency
		if cfg.FeeConfig.PerYear != nil {
			if fee := cfg.FeeConfig.PerYear.For(region); fee != nil {
				q.Amount = fee.Amount * int64(years)
				q.Currency = currencyOr(fee.Currency)
			}
		}
		q.EndDate = today.AddDate(0, years*12, 0)
		return q
	}

	q.Amount, q.Currency = 0, DomesticCurrency
	if cfg.FeeConfig.RegionFees != nil {
		if fee := cfg.FeeConfig.RegionFees.For(region); fee != nil {
			q.Amount = fee.Amount
			q.Currency = currencyOr(fee.Currency)
		}
	}
	months := cfg.DurationMonths
	if months <= 0 {
		months = 12
	}
	q.EndDate = today.AddDate(0, months, 0)
	return q
}

// MembershipEndDate recomputes the end date of a membership starting at now.
func MembershipEndDate(cfg domain.MembershipTypeConfig, form domain.ApplicationForm, now time.Time) time.Time {
	return CalculateQuote(cfg, form, now).EndDate
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func currencyOr(currency string) string {
	if strings.TrimSpace(currency) == "" {
		return DomesticCurrency
	}
	return currency
}

// PaymentTarget is the association's UPI collection account.
type PaymentTarget struct {
	VPA       string
	PayeeName string
}

// Payload builds a UPI deep link for the amount. txRef is optional.
func (p PaymentTarget) Payload(amount int64, currency, note, txRef string) string {
	if p.VPA == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("upi://pay?pa=")
	b.WriteString(url.QueryEscape(p.VPA))
	b.WriteString("&pn=")
	b.WriteString(url.QueryEscape(p.PayeeName))
	b.WriteString("&am=")
	b.WriteString(formatMajorUnits(amount))
	b.WriteString("&cu=")
	b.WriteString(url.QueryEscape(currency))
	b.WriteString("&tn=")
	b.WriteString(url.QueryEscape(note))
	if txRef != "" {
		b.WriteString("&tr=")
		b.WriteString(url.QueryEscape(txRef))
	}
	return b.String()
}

func formatMajorUnits(amount int64) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
