package app

import (
	"strings"

	"github.com/gart/membership-service/internal/domain"
)

// DomesticCountry is the country priced in the domestic region.
const DomesticCountry = "India"

// DomesticCurrency is used whenever a fee entry has no currency of its own.
const DomesticCurrency = "INR"

// lmicCountries are priced in the low/middle-income region.
var lmicCountries = []string{
	"Afghanistan", "Algeria", "Angola", "Bangladesh", "Benin", "Bhutan", "Bolivia",
	"Burkina Faso", "Burundi", "Cabo Verde", "Cambodia", "Cameroon", "Central African Republic",
	"Chad", "Comoros", "Congo", "Democratic Republic of the Congo", "Cote d'Ivoire", "Djibouti",
	"Egypt", "Eritrea", "Eswatini", "Ethiopia", "Gambia", "Ghana", "Guinea", "Guinea-Bissau",
	"Haiti", "Honduras", "Iran", "Kenya", "Kiribati", "Kyrgyzstan", "Laos", "Lebanon", "Lesotho",
	"Liberia", "Madagascar", "Malawi", "Mali", "Mauritania", "Micronesia", "Mongolia", "Morocco",
	"Mozambique", "Myanmar", "Nepal", "Nicaragua", "Niger", "Nigeria", "North Korea", "Pakistan",
	"Papua New Guinea", "Philippines", "Rwanda", "Samoa", "Sao Tome and Principe", "Senegal",
	"Sierra Leone", "Solomon Islands", "Somalia", "South Sudan", "Sri Lanka", "Sudan", "Syria",
	"Tajikistan", "Tanzania", "Timor-Leste", "Togo", "Tunisia", "Uganda", "Ukraine", "Uzbekistan",
	"Vanuatu", "Vietnam", "West Bank and Gaza", "Yemen", "Zambia", "Zimbabwe",
}

var lmicIndex = func() map[string]struct{} {
	idx := make(map[string]struct{}, len(lmicCountries))
	for _, c := range lmicCountries {
		idx[strings.ToLower(c)] = struct{}{}
	}
	return idx
}()

// ClassifyRegion maps a country name to its pricing region. Names are trimmed and compared
// case-insensitively; anything unmatched is international.
func ClassifyRegion(country string) domain.Region {
	name := strings.TrimSpace(country)
	if strings.EqualFold(name, DomesticCountry) {
		return domain.RegionDomestic
	}
	if _, ok := lmicIndex[strings.ToLower(name)]; ok {
		return domain.RegionLMIC
	}
	return domain.RegionInternational
}
