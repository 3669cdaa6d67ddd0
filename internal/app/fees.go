/**
 * @description
 * Hardcoded fee schedule defaults. They are materialised into the membership_types
 * table on first use and can be overridden by administrators afterwards.
 */
package app

import "github.com/gart/membership-service/internal/domain"

func money(amount int64, currency string) *domain.Money {
	return &domain.Money{Amount: amount, Currency: currency}
}

// DefaultMembershipType returns the built-in configuration for a category. Unknown codes
// get a generic 12-month, zero-fee configuration.
func DefaultMembershipType(code domain.Category) domain.MembershipTypeConfig {
	switch code {
	case domain.CategoryStudent:
		return domain.MembershipTypeConfig{
			Code:           code,
			Name:           "Student Membership",
			Description:    "For students enrolled in a rehabilitation therapy course. Priced per remaining study year.",
			Tier:           2,
			DurationMonths: 12,
			Fee:            *money(50000, DomesticCurrency),
			FeeConfig: domain.FeeConfig{PerYear: &domain.RegionFees{
				Domestic:      money(50000, DomesticCurrency),
				LMIC:          money(1000, "USD"),
				International: money(2500, "USD"),
			}},
			IsActive: true,
		}
	case domain.CategoryTherapist:
		return flatMembershipType(code, "Therapist Membership",
			"For registered rehabilitation therapists.", 4, 300000, 4000, 10000)
	case domain.CategoryAllied:
		return flatMembershipType(code, "Allied Health Membership",
			"For registered allied health professionals.", 3, 200000, 3000, 7500)
	case domain.CategoryVolunteer:
		return flatMembershipType(code, "Volunteer Membership",
			"For volunteers supporting the association.", 1, 50000, 1000, 2000)
	}
	return domain.MembershipTypeConfig{
		Code:           code,
		Name:           string(code),
		DurationMonths: 12,
		Fee:            domain.Money{Amount: 0, Currency: DomesticCurrency},
		IsActive:       true,
	}
}

func flatMembershipType(code domain.Category, name, description string, tier int, domestic, lmic, international int64) domain.MembershipTypeConfig {
	return domain.MembershipTypeConfig{
		Code:           code,
		Name:           name,
		Description:    description,
		Tier:           tier,
		DurationMonths: 12,
		Fee:            *money(domestic, DomesticCurrency),
		FeeConfig: domain.FeeConfig{RegionFees: &domain.RegionFees{
			Domestic:      money(domestic, DomesticCurrency),
			LMIC:          money(lmic, "USD"),
			International: money(international, "USD"),
		}},
		IsActive: true,
	}
}
