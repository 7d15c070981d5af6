// Package geo maps ISO-3166-1 alpha-2 country codes to the continent and
// display name used in node metadata and metric labels. The tables are
// static; the ring does not gain vantage points in new countries often
// enough to warrant anything dynamic.
package geo

import "strings"

const unknownContinent = "Unknown"

var continentGroups = map[string][]string{
	"Africa": {
		"AO", "BF", "BI", "BJ", "BW", "CD", "CF", "CG", "CI", "CM", "CV",
		"DJ", "DZ", "EG", "EH", "ER", "ET", "GA", "GH", "GM", "GN", "GQ",
		"GW", "KE", "KM", "LR", "LS", "LY", "MA", "MG", "ML", "MR", "MU",
		"MW", "MZ", "NA", "NE", "NG", "RE", "RW", "SC", "SD", "SH", "SL",
		"SN", "SO", "SS", "ST", "SZ", "TD", "TG", "TN", "TZ", "UG", "YT",
		"ZA", "ZM", "ZW",
	},
	"Asia": {
		"AE", "AF", "AM", "AZ", "BD", "BH", "BN", "BT", "CN", "CY", "GE",
		"HK", "ID", "IL", "IN", "IO", "IQ", "IR", "JO", "JP", "KG", "KH",
		"KP", "KR", "KW", "KZ", "LA", "LB", "LK", "MM", "MN", "MO", "MV",
		"MY", "NP", "OM", "PH", "PK", "PS", "QA", "SA", "SG", "SY", "TH",
		"TJ", "TL", "TM", "TR", "TW", "UZ", "VN", "YE",
	},
	"Europe": {
		"AD", "AL", "AT", "AX", "BA", "BE", "BG", "BY", "CH", "CZ", "DE",
		"DK", "EE", "ES", "FI", "FO", "FR", "GB", "GG", "GI", "GR", "HR",
		"HU", "IE", "IM", "IS", "IT", "JE", "LI", "LT", "LU", "LV", "MC",
		"MD", "ME", "MK", "MT", "NL", "NO", "PL", "PT", "RO", "RS", "RU",
		"SE", "SI", "SJ", "SK", "SM", "UA", "VA",
	},
	"North America": {
		"AG", "AI", "AW", "BB", "BL", "BM", "BQ", "BS", "BZ", "CA", "CR",
		"CU", "CW", "DM", "DO", "GD", "GL", "GP", "GT", "HN", "HT", "JM",
		"KN", "KY", "LC", "MF", "MQ", "MS", "MX", "NI", "PA", "PM", "PR",
		"SV", "SX", "TC", "TT", "US", "VC", "VG", "VI",
	},
	"South America": {
		"AR", "BO", "BR", "CL", "CO", "EC", "FK", "GF", "GY", "PE", "PY",
		"SR", "UY", "VE",
	},
	"Oceania": {
		"AS", "AU", "CK", "FJ", "FM", "GU", "KI", "MH", "MP", "NC", "NF",
		"NR", "NU", "NZ", "PF", "PG", "PN", "PW", "SB", "TK", "TO", "TV",
		"UM", "VU", "WF", "WS",
	},
	"Antarctica": {
		"AQ", "BV", "GS", "HM", "TF",
	},
}

var continentByCode = func() map[string]string {
	m := make(map[string]string, 256)
	for continent, codes := range continentGroups {
		for _, code := range codes {
			m[code] = continent
		}
	}
	return m
}()

// ContinentFor returns the continent name for an ISO alpha-2 country
// code, or "Unknown" for codes it does not recognise.
func ContinentFor(alpha2 string) string {
	if continent, ok := continentByCode[strings.ToUpper(alpha2)]; ok {
		return continent
	}
	return unknownContinent
}

// CountryName returns the short country name for an ISO alpha-2 code, or
// the code itself when no name is known.
func CountryName(alpha2 string) string {
	if name, ok := countryNames[strings.ToUpper(alpha2)]; ok {
		return name
	}
	return alpha2
}
