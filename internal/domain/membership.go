/**
 * @description
 * Domain models for membership types, fee configuration and issued memberships.
 * Amounts are carried in minor currency units (paise, cents).
 */
package domain

import (
	"strings"
	"time"
)

// Category is the membership category code.
type Category string

const (
	CategoryStudent   Category = "STUDENT"
	CategoryTherapist Category = "THERAPIST"
	CategoryAllied    Category = "ALLIED"
	CategoryVolunteer Category = "VOLUNTEER"
)

// Categories lists every recognised category in tier order.
var Categories = []Category{CategoryVolunteer, CategoryStudent, CategoryAllied, CategoryTherapist}

// ParseCategory normalises a client supplied category code.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(raw)))
	switch c {
	case CategoryStudent, CategoryTherapist, CategoryAllied, CategoryVolunteer:
		return c, true
	}
	return "", false
}

// IsProfessional reports whether the category uses the professional form.
func (c Category) IsProfessional() bool {
	return c == CategoryTherapist || c == CategoryAllied
}

// Region is a pricing region.
type Region string

const (
	RegionDomestic      Region = "domestic"
	RegionLMIC          Region = "lmic"
	RegionInternational Region = "international"
)

// Money is an amount in minor units with its ISO currency code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// RegionFees holds one price per pricing region. A nil entry means "not configured".
type RegionFees struct {
	Domestic      *Money `json:"domestic,omitempty"`
	LMIC          *Money `json:"lmic,omitempty"`
	International *Money `json:"international,omitempty"`
}

// For returns the fee configured for a region.
func (f RegionFees) For(region Region) *Money {
	switch region {
	case RegionDomestic:
		return f.Domestic
	case RegionLMIC:
		return f.LMIC
	case RegionInternational:
		return f.International
	}
	return nil
}

// FeeConfig holds either flat region fees or, for students, a per-study-year price.
type FeeConfig struct {
	RegionFees *RegionFees `json:"regionFees,omitempty"`
	PerYear    *RegionFees `json:"perYear,omitempty"`
}

// MembershipTypeConfig is the fee schedule entry for one category.
type MembershipTypeConfig struct {
	Code           Category  `json:"code"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Tier           int       `json:"tier"`
	DurationMonths int       `json:"durationMonths"`
	Fee            Money     `json:"fee"`
	FeeConfig      FeeConfig `json:"feeConfig"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// MembershipTypePatch is an administrator update. Nil fields are left untouched.
type MembershipTypePatch struct {
	Name           *string    `json:"name,omitempty"`
	Description    *string    `json:"description,omitempty"`
	Tier           *int       `json:"tier,omitempty"`
	DurationMonths *int       `json:"durationMonths,omitempty"`
	Fee            *Money     `json:"fee,omitempty"`
	FeeConfig      *FeeConfig `json:"feeConfig,omitempty"`
	IsActive       *bool      `json:"isActive,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p MembershipTypePatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Tier == nil && p.DurationMonths == nil &&
		p.Fee == nil && p.FeeConfig == nil && p.IsActive == nil
}

// Apply returns a copy of cfg with the patch applied.
func (p MembershipTypePatch) Apply(cfg MembershipTypeConfig) MembershipTypeConfig {
	if p.Name != nil {
		cfg.Name = *p.Name
	}
	if p.Description != nil {
		cfg.Description = *p.Description
	}
	if p.Tier != nil {
		cfg.Tier = *p.Tier
	}
	if p.DurationMonths != nil {
		cfg.DurationMonths = *p.DurationMonths
	}
	if p.Fee != nil {
		cfg.Fee = *p.Fee
	}
	if p.FeeConfig != nil {
		cfg.FeeConfig = *p.FeeConfig
	}
	if p.IsActive != nil {
		cfg.IsActive = *p.IsActive
	}
	return cfg
}

// Membership status values.
const (
	MembershipStatusActive    = "active"
	MembershipStatusSuspended = "suspended"
	MembershipStatusExpired   = "expired"
	MembershipStatusCancelled = "cancelled"
)

// Membership is issued once per approved application and is never edited afterwards,
// apart from status changes made by the expiry sweep.
type Membership struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	MembershipType Category  `json:"membershipType"`
	ApplicationID  string    `json:"applicationId"`
	Status         string    `json:"status"`
	StartDate      time.Time `json:"startDate"`
	EndDate        time.Time `json:"endDate"`
	RenewalCount   int       `json:"renewalCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// IsCurrent reports whether the membership is active and not yet past its end date.
func (m Membership) IsCurrent(now time.Time) bool {
	return m.Status == MembershipStatusActive && m.EndDate.After(now)
}

// User is the read model of an account owned by the auth service.
type User struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Email               string  `json:"email"`
	Role                string  `json:"role"`
	CurrentMembershipID *string `json:"currentMembershipId,omitempty"`
}
