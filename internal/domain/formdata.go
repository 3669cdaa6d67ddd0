package domain

import (
	"encoding/json"
	"fmt"
)

// ApplicationForm is the per-category applicant form. Each variant is stored as JSON
// in the application's form_data column.
type ApplicationForm interface {
	Category() Category
	Country() string
}

// Attachments maps an upload field name to its stored path.
type Attachments map[string]string

// Person holds the identity and contact fields shared by all forms.
type Person struct {
	FullName    string `json:"fullName"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
	City        string `json:"city"`
	State       string `json:"state"`
	CountryName string `json:"country"`
}

// StudentForm is submitted for the STUDENT category.
type StudentForm struct {
	Person
	InstituteName  string      `json:"instituteName"`
	CourseName     string      `json:"courseName"`
	CourseDuration int         `json:"courseDuration"`
	CurrentYear    int         `json:"currentYear"`
	University     string      `json:"university"`
	Declaration    bool        `json:"declaration"`
	Attachments    Attachments `json:"attachments,omitempty"`
}

func (StudentForm) Category() Category { return CategoryStudent }
func (f StudentForm) Country() string  { return f.CountryName }

// RemainingYears is the number of study years left including the current one.
func (f StudentForm) RemainingYears() int {
	years := f.CourseDuration - f.CurrentYear + 1
	if years < 1 {
		return 1
	}
	return years
}

// ProfessionalForm is submitted for the THERAPIST and ALLIED categories.
type ProfessionalForm struct {
	Person
	Code                     Category    `json:"category"`
	ApplicationType          string      `json:"applicationType"`
	Profession               string      `json:"profession"`
	Organization             string      `json:"organization"`
	Department               string      `json:"department"`
	Experience               int         `json:"experience"`
	AuthorityName            string      `json:"authorityName"`
	RegistrationNumber       string      `json:"registrationNumber"`
	RegistrationValidity     string      `json:"registrationValidity"`
	EligibilityQualification bool        `json:"eligibilityQualification"`
	EligibilityRegistration  bool        `json:"eligibilityRegistration"`
	EligibilityEthics        bool        `json:"eligibilityEthics"`
	GartMembershipNumber     string      `json:"gartMembershipNumber,omitempty"`
	PreviousExpiryDate       string      `json:"previousExpiryDate,omitempty"`
	Declaration              bool        `json:"declaration"`
	Attachments              Attachments `json:"attachments,omitempty"`
}

func (f ProfessionalForm) Category() Category { return f.Code }
func (f ProfessionalForm) Country() string    { return f.CountryName }

// Application types for professional forms.
const (
	ApplicationTypeFresh   = "fresh"
	ApplicationTypeRenewal = "renewal"
)

// VolunteerForm is submitted for the VOLUNTEER category.
type VolunteerForm struct {
	Person
	Occupation  string      `json:"occupation"`
	Declaration bool        `json:"declaration"`
	Attachments Attachments `json:"attachments,omitempty"`
}

func (VolunteerForm) Category() Category { return CategoryVolunteer }
func (f VolunteerForm) Country() string  { return f.CountryName }

// DecodeForm reads a stored form_data document back into its category variant.
func DecodeForm(category Category, raw json.RawMessage) (ApplicationForm, error) {
	switch {
	case category == CategoryStudent:
		var f StudentForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode student form: %w", err)
		}
		return f, nil
	case category.IsProfessional():
		var f ProfessionalForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode professional form: %w", err)
		}
		f.Code = category
		return f, nil
	case category == CategoryVolunteer:
		var f VolunteerForm
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("decode volunteer form: %w", err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown membership category %q", category)
}

// EncodeForm serialises a form variant with its attachments for storage.
func EncodeForm(form ApplicationForm, attachments Attachments) (json.RawMessage, error) {
	switch f := form.(type) {
	case StudentForm:
		f.Attachments = attachments
		return json.Marshal(f)
	case ProfessionalForm:
		f.Attachments = attachments
		return json.Marshal(f)
	case VolunteerForm:
		f.Attachments = attachments
		return json.Marshal(f)
	}
	return nil, fmt.Errorf("unsupported form type %T", form)
}

// ContactEmail returns the applicant email captured on the form.
func ContactEmail(form ApplicationForm) string {
	switch f := form.(type) {
	case StudentForm:
		return f.Email
	case ProfessionalForm:
		return f.Email
	case VolunteerForm:
		return f.Email
	}
	return ""
}
