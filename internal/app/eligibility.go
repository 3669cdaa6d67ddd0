/**
 * @description
 * Category-specific validation of applicant form data. Validators collect every
 * violated rule instead of stopping at the first one so the client can show the
 * complete list at once.
 */
package app

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gart/membership-service/internal/domain"
)

var personFields = []string{"fullName", "dateOfBirth", "gender", "mobile", "email", "city", "state", "country"}

var studentRequired = append(append([]string{}, personFields...),
	"instituteName", "courseName", "courseDuration", "currentYear", "university")

var professionalRequired = append([]string{"applicationType"}, append(append([]string{}, personFields...),
	"profession", "organization", "department", "experience",
	"authorityName", "registrationNumber", "registrationValidity")...)

var volunteerRequired = append(append([]string{}, personFields...), "occupation")

var eligibilityFlags = []string{"eligibilityQualification", "eligibilityRegistration", "eligibilityEthics"}

// maxExperienceYears bounds the professional experience field.
const maxExperienceYears = 80

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05.000Z"}

// ValidateForm checks the submitted form of a category and returns every problem found.
// An empty result means the form is valid.
func ValidateForm(category domain.Category, data map[string]any) []string {
	switch {
	case category == domain.CategoryStudent:
		return validateStudent(data)
	case category.IsProfessional():
		return validateProfessional(data)
	case category == domain.CategoryVolunteer:
		return validateVolunteer(data)
	}
	return []string{fmt.Sprintf("membershipType %q is not supported", category)}
}

func validateStudent(data map[string]any) []string {
	problems := missingFields(data, studentRequired)

	problems = append(problems, checkDate(data, "dateOfBirth")...)

	duration, durationOK := numberField(data, "courseDuration")
	if present(data, "courseDuration") {
		if !durationOK || !isWhole(duration) || duration < 2 || duration > 4 {
			problems = append(problems, "courseDuration must be a whole number between 2 and 4")
			durationOK = false
		}
	}
	year, yearOK := numberField(data, "currentYear")
	if present(data, "currentYear") {
		if !yearOK || !isWhole(year) || year < 1 || year > 4 {
			problems = append(problems, "currentYear must be a whole number between 1 and 4")
			yearOK = false
		}
	}
	if durationOK && yearOK && year > duration {
		problems = append(problems, "currentYear cannot be greater than courseDuration")
	}

	return append(problems, checkDeclaration(data)...)
}

func validateProfessional(data map[string]any) []string {
	problems := missingFields(data, professionalRequired)

	appType := stringField(data, "applicationType")
	if present(data, "applicationType") && appType != domain.ApplicationTypeFresh && appType != domain.ApplicationTypeRenewal {
		problems = append(problems, "applicationType must be either fresh or renewal")
	}

	problems = append(problems, checkDate(data, "dateOfBirth")...)
	problems = append(problems, checkDate(data, "registrationValidity")...)

	if present(data, "experience") {
		if exp, ok := numberField(data, "experience"); !ok || !isWhole(exp) || exp < 0 || exp > maxExperienceYears {
			problems = append(problems, fmt.Sprintf("experience must be a whole number of years between 0 and %d", maxExperienceYears))
		}
	}

	for _, flag := range eligibilityFlags {
		if !isTrue(data, flag) {
			problems = append(problems, flag+" must be confirmed")
		}
	}

	if appType == domain.ApplicationTypeRenewal {
		problems = append(problems, missingFields(data, []string{"gartMembershipNumber", "previousExpiryDate"})...)
		problems = append(problems, checkDate(data, "previousExpiryDate")...)
	}

	return append(problems, checkDeclaration(data)...)
}

func validateVolunteer(data map[string]any) []string {
	problems := missingFields(data, volunteerRequired)
	problems = append(problems, checkDate(data, "dateOfBirth")...)
	return append(problems, checkDeclaration(data)...)
}

// BuildForm converts validated form data into the category's typed variant.
func BuildForm(category domain.Category, data map[string]any) (domain.ApplicationForm, error) {
	person := domain.Person{
		FullName:    stringField(data, "fullName"),
		DateOfBirth: stringField(data, "dateOfBirth"),
		Gender:      stringField(data, "gender"),
		Mobile:      stringField(data, "mobile"),
		Email:       stringField(data, "email"),
		City:        stringField(data, "city"),
		State:       stringField(data, "state"),
		CountryName: stringField(data, "country"),
	}

	switch {
	case category == domain.CategoryStudent:
		duration, _ := numberField(data, "courseDuration")
		year, _ := numberField(data, "currentYear")
		return domain.StudentForm{
			Person:         person,
			InstituteName:  stringField(data, "instituteName"),
			CourseName:     stringField(data, "courseName"),
			CourseDuration: int(duration),
			CurrentYear:    int(year),
			University:     stringField(data, "university"),
			Declaration:    isTrue(data, "declaration"),
		}, nil
	case category.IsProfessional():
		experience, _ := numberField(data, "experience")
		return domain.ProfessionalForm{
			Person:                   person,
			Code:                     category,
			ApplicationType:          stringField(data, "applicationType"),
			Profession:               stringField(data, "profession"),
			Organization:             stringField(data, "organization"),
			Department:               stringField(data, "department"),
			Experience:               int(experience),
			AuthorityName:            stringField(data, "authorityName"),
			RegistrationNumber:       stringField(data, "registrationNumber"),
			RegistrationValidity:     stringField(data, "registrationValidity"),
			EligibilityQualification: isTrue(data, "eligibilityQualification"),
			EligibilityRegistration:  isTrue(data, "eligibilityRegistration"),
			EligibilityEthics:        isTrue(data, "eligibilityEthics"),
			GartMembershipNumber:     stringField(data, "gartMembershipNumber"),
			PreviousExpiryDate:       stringField(data, "previousExpiryDate"),
			Declaration:              isTrue(data, "declaration"),
		}, nil
	case category == domain.CategoryVolunteer:
		return domain.VolunteerForm{
			Person:      person,
			Occupation:  stringField(data, "occupation"),
			Declaration: isTrue(data, "declaration"),
		}, nil
	}
	return nil, fmt.Errorf("unknown membership category %q", category)
}

func missingFields(data map[string]any, fields []string) []string {
	var problems []string
	for _, field := range fields {
		if !present(data, field) {
			problems = append(problems, field+" is required")
		}
	}
	return problems
}

func present(data map[string]any, key string) bool {
	v, ok := data[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func numberField(data map[string]any, key string) (float64, bool) {
	switch v := data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func isWhole(f float64) bool {
	return f == math.Trunc(f)
}

// isTrue accepts only the JSON literal true.
func isTrue(data map[string]any, key string) bool {
	b, ok := data[key].(bool)
	return ok && b
}

func checkDeclaration(data map[string]any) []string {
	if isTrue(data, "declaration") {
		return nil
	}
	return []string{"declaration must be accepted"}
}

func checkDate(data map[string]any, key string) []string {
	if !present(data, key) {
		return nil
	}
	if _, ok := ParseDate(stringField(data, key)); !ok {
		return []string{key + " must be a valid date"}
	}
	return nil
}

// ParseDate accepts calendar dates (YYYY-MM-DD) and RFC 3339 timestamps.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
