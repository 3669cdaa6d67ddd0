package app

import (
	"strings"
	"testing"
	"time"

	"github.com/gart/membership-service/internal/domain"
)

func TestClassifyRegion(t *testing.T) {
	tests := []struct {
		country string
		want    domain.Region
	}{
		{country: "India", want: domain.RegionDomestic},
		{country: "  india ", want: domain.RegionDomestic},
		{country: "Ghana", want: domain.RegionLMIC},
		{country: "NEPAL", want: domain.RegionLMIC},
		{country: "Germany", want: domain.RegionInternational},
		{country: "", want: domain.RegionInternational},
	}

	for _, tc := range tests {
		if got := ClassifyRegion(tc.country); got != tc.want {
			t.Errorf("ClassifyRegion(%q) = %s, want %s", tc.country, got, tc.want)
		}
	}
}

func TestCalculateQuote_StudentChargesRemainingYears(t *testing.T) {
	now := time.Date(2025, 3, 10, 18, 45, 0, 0, time.FixedZone("IST", 5*3600+1800))
	form := domain.StudentForm{
		Person:         domain.Person{CountryName: "India"},
		CourseDuration: 4,
		CurrentYear:    2,
	}

	q := CalculateQuote(DefaultMembershipType(domain.CategoryStudent), form, now)

	if q.RemainingYears != 3 {
		t.Fatalf("expected 3 remaining years, got %d", q.RemainingYears)
	}
	if q.Amount != 150000 || q.Currency != "INR" {
		t.Fatalf("expected 150000 INR, got %d %s", q.Amount, q.Currency)
	}
	wantStart := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	if !q.StartDate.Equal(wantStart) {
		t.Fatalf("expected start %s, got %s", wantStart, q.StartDate)
	}
	if want := wantStart.AddDate(0, 36, 0); !q.EndDate.Equal(want) {
		t.Fatalf("expected end %s, got %s", want, q.EndDate)
	}
}

func TestCalculateQuote_IsDeterministicWithinADay(t *testing.T) {
	form := domain.VolunteerForm{Person: domain.Person{CountryName: "Kenya"}}
	cfg := DefaultMembershipType(domain.CategoryVolunteer)

	morning := CalculateQuote(cfg, form, time.Date(2025, 7, 1, 1, 0, 0, 0, time.UTC))
	evening := CalculateQuote(cfg, form, time.Date(2025, 7, 1, 23, 59, 0, 0, time.UTC))

	if morning != evening {
		t.Fatalf("expected identical quotes, got %+v and %+v", morning, evening)
	}
}

func TestCalculateQuote_RegionFees(t *testing.T) {
	now := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		cfg          domain.MembershipTypeConfig
		country      string
		wantAmount   int64
		wantCurrency string
		wantEnd      time.Time
	}{
		{
			name:         "domestic therapist",
			cfg:          DefaultMembershipType(domain.CategoryTherapist),
			country:      "India",
			wantAmount:   300000,
			wantCurrency: "INR",
			wantEnd:      time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:         "international allied",
			cfg:          DefaultMembershipType(domain.CategoryAllied),
			country:      "Canada",
			wantAmount:   7500,
			wantCurrency: "USD",
			wantEnd:      time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "missing region entry is free in INR",
			cfg: domain.MembershipTypeConfig{
				Code:           domain.CategoryVolunteer,
				DurationMonths: 6,
				FeeConfig: domain.FeeConfig{RegionFees: &domain.RegionFees{
					Domestic: &domain.Money{Amount: 100, Currency: "INR"},
				}},
			},
			country:      "Ghana",
			wantAmount:   0,
			wantCurrency: "INR",
			wantEnd:      time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "blank currency falls back to INR",
			cfg: domain.MembershipTypeConfig{
				Code: domain.CategoryVolunteer,
				FeeConfig: domain.FeeConfig{RegionFees: &domain.RegionFees{
					International: &domain.Money{Amount: 999},
				}},
			},
			country:      "France",
			wantAmount:   999,
			wantCurrency: "INR",
			wantEnd:      time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var form domain.ApplicationForm
			if tc.cfg.Code.IsProfessional() {
				form = domain.ProfessionalForm{Person: domain.Person{CountryName: tc.country}, Code: tc.cfg.Code}
			} else {
				form = domain.VolunteerForm{Person: domain.Person{CountryName: tc.country}}
			}

			q := CalculateQuote(tc.cfg, form, now)
			if q.Amount != tc.wantAmount || q.Currency != tc.wantCurrency {
				t.Fatalf("expected %d %s, got %d %s", tc.wantAmount, tc.wantCurrency, q.Amount, q.Currency)
			}
			if !q.EndDate.Equal(tc.wantEnd) {
				t.Fatalf("expected end %s, got %s", tc.wantEnd, q.EndDate)
			}
		})
	}
}

func TestPaymentTargetPayload(t *testing.T) {
	target := PaymentTarget{VPA: "gart@okaxis", PayeeName: "GART India"}

	got := target.Payload(150050, "INR", "GART student membership", "")
	want := "upi://pay?pa=gart%40okaxis&pn=GART+India&am=1500.50&cu=INR&tn=GART+student+membership"
	if got != want {
		t.Fatalf("unexpected payload\n got: %s\nwant: %s", got, want)
	}

	if withRef := target.Payload(500, "INR", "note", "ref-1"); !strings.HasSuffix(withRef, "&tr=ref-1") {
		t.Fatalf("expected transaction reference suffix, got %s", withRef)
	}
	if empty := (PaymentTarget{}).Payload(500, "INR", "note", ""); empty != "" {
		t.Fatalf("expected no payload without a VPA, got %s", empty)
	}
}

func TestFormatMembershipID(t *testing.T) {
	if got := FormatMembershipID(1); got != "GART-000001" {
		t.Fatalf("expected GART-000001, got %s", got)
	}
	if got := FormatMembershipID(1234567); got != "GART-1234567" {
		t.Fatalf("expected GART-1234567, got %s", got)
	}
}
