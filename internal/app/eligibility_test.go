package app

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/gart/membership-service/internal/domain"
)

func person(country string) map[string]any {
	return map[string]any{
		"fullName":    "Asha Rao",
		"dateOfBirth": "1998-04-12",
		"gender":      "female",
		"mobile":      "+919800000000",
		"email":       "asha@example.org",
		"city":        "Pune",
		"state":       "Maharashtra",
		"country":     country,
		"declaration": true,
	}
}

func studentData(duration, year any) map[string]any {
	data := person("India")
	data["instituteName"] = "Institute of Rehabilitation"
	data["courseName"] = "BPT"
	data["courseDuration"] = duration
	data["currentYear"] = year
	data["university"] = "MUHS"
	return data
}

func professionalData(applicationType string) map[string]any {
	data := person("India")
	data["applicationType"] = applicationType
	data["profession"] = "Physiotherapist"
	data["organization"] = "City Hospital"
	data["department"] = "Rehabilitation"
	data["experience"] = json.Number("6")
	data["authorityName"] = "State Council"
	data["registrationNumber"] = "PT-1234"
	data["registrationValidity"] = "2027-12-31"
	data["eligibilityQualification"] = true
	data["eligibilityRegistration"] = true
	data["eligibilityEthics"] = true
	return data
}

func TestValidateForm_Valid(t *testing.T) {
	volunteer := person("Ghana")
	volunteer["occupation"] = "Teacher"

	renewal := professionalData("renewal")
	renewal["gartMembershipNumber"] = "GART-000042"
	renewal["previousExpiryDate"] = "2024-06-30T00:00:00.000Z"

	tests := []struct {
		name     string
		category domain.Category
		data     map[string]any
	}{
		{name: "student", category: domain.CategoryStudent, data: studentData(json.Number("4"), json.Number("2"))},
		{name: "student with float numbers", category: domain.CategoryStudent, data: studentData(3.0, 3.0)},
		{name: "fresh therapist", category: domain.CategoryTherapist, data: professionalData("fresh")},
		{name: "renewing allied", category: domain.CategoryAllied, data: renewal},
		{name: "volunteer", category: domain.CategoryVolunteer, data: volunteer},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if problems := ValidateForm(tc.category, tc.data); len(problems) != 0 {
				t.Fatalf("expected no problems, got %v", problems)
			}
		})
	}
}

func TestValidateForm_StudentYears(t *testing.T) {
	tests := []struct {
		name     string
		duration any
		year     any
		want     []string
	}{
		{
			name:     "duration too long",
			duration: json.Number("5"),
			year:     json.Number("1"),
			want:     []string{"courseDuration must be a whole number between 2 and 4"},
		},
		{
			name:     "fractional year",
			duration: json.Number("4"),
			year:     json.Number("1.5"),
			want:     []string{"currentYear must be a whole number between 1 and 4"},
		},
		{
			name:     "year past duration",
			duration: json.Number("2"),
			year:     json.Number("3"),
			want:     []string{"currentYear cannot be greater than courseDuration"},
		},
		{
			name:     "non numeric duration",
			duration: "four",
			year:     json.Number("1"),
			want:     []string{"courseDuration must be a whole number between 2 and 4"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateForm(domain.CategoryStudent, studentData(tc.duration, tc.year))
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestValidateForm_ProfessionalCollectsEveryProblem(t *testing.T) {
	data := professionalData("renewal")
	delete(data, "organization")
	data["registrationValidity"] = "31/12/2027"
	data["eligibilityEthics"] = "true"
	data["experience"] = json.Number("-1")
	data["declaration"] = false

	got := ValidateForm(domain.CategoryTherapist, data)
	want := []string{
		"organization is required",
		"registrationValidity must be a valid date",
		"experience must be a whole number of years between 0 and 80",
		"eligibilityEthics must be confirmed",
		"gartMembershipNumber is required",
		"previousExpiryDate is required",
		"declaration must be accepted",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected problems\n got: %v\nwant: %v", got, want)
	}
}

func TestValidateForm_RejectsUnknownApplicationType(t *testing.T) {
	got := ValidateForm(domain.CategoryAllied, professionalData("transfer"))
	want := []string{"applicationType must be either fresh or renewal"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestValidateForm_VolunteerRequiredFields(t *testing.T) {
	got := ValidateForm(domain.CategoryVolunteer, map[string]any{"fullName": "  ", "country": "India"})
	want := []string{
		"fullName is required",
		"dateOfBirth is required",
		"gender is required",
		"mobile is required",
		"email is required",
		"city is required",
		"state is required",
		"occupation is required",
		"declaration must be accepted",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected problems\n got: %v\nwant: %v", got, want)
	}
}

func TestBuildForm_Student(t *testing.T) {
	form, err := BuildForm(domain.CategoryStudent, studentData(json.Number("4"), json.Number("2")))
	if err != nil {
		t.Fatalf("BuildForm returned error: %v", err)
	}
	student, ok := form.(domain.StudentForm)
	if !ok {
		t.Fatalf("expected StudentForm, got %T", form)
	}
	if student.RemainingYears() != 3 {
		t.Fatalf("expected 3 remaining years, got %d", student.RemainingYears())
	}
	if student.Country() != "India" || !student.Declaration {
		t.Fatalf("unexpected form: %+v", student)
	}
}

func TestParseDate(t *testing.T) {
	for _, raw := range []string{"2025-03-01", "2025-03-01T10:00:00Z", "2025-03-01T10:00:00", "2025-03-01T10:00:00.000Z"} {
		if _, ok := ParseDate(raw); !ok {
			t.Errorf("expected %q to parse", raw)
		}
	}
	for _, raw := range []string{"", "01-03-2025", "yesterday"} {
		if _, ok := ParseDate(raw); ok {
			t.Errorf("expected %q to be rejected", raw)
		}
	}
}

func TestValidateForm_ProfessionalExperience(t *testing.T) {
	const problem = "experience must be a whole number of years between 0 and 80"
	testCases := []struct {
		name       string
		experience any
		wantValid  bool
	}{
		{name: "zero years", experience: json.Number("0"), wantValid: true},
		{name: "whole years", experience: json.Number("12"), wantValid: true},
		{name: "whole years as text", experience: "7", wantValid: true},
		{name: "fractional years", experience: json.Number("2.5"), wantValid: false},
		{name: "negative", experience: json.Number("-3"), wantValid: false},
		{name: "beyond range", experience: json.Number("1e12"), wantValid: false},
		{name: "not a number", experience: "several", wantValid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := professionalData("fresh")
			data["experience"] = tc.experience
			got := ValidateForm(domain.CategoryAllied, data)
			if tc.wantValid && len(got) != 0 {
				t.Fatalf("expected no problems, got %v", got)
			}
			if !tc.wantValid && !reflect.DeepEqual(got, []string{problem}) {
				t.Fatalf("expected [%s], got %v", problem, got)
			}
		})
	}
}
