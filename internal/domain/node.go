package domain

import "strings"

// ChannelStatus описывает состояние SSH-канала до узла.
type ChannelStatus string

const (
	ChannelUnknown    ChannelStatus = "unknown"
	ChannelConnecting ChannelStatus = "connecting"
	ChannelHealthy    ChannelStatus = "healthy"
	ChannelUnhealthy  ChannelStatus = "unhealthy"
	ChannelClosed     ChannelStatus = "closed"
)

// RingNode is one RING vantage point together with the current status of
// its SSH channel. Nodes are built by the reconciler from directory data;
// Status is merged in by the registry and never persisted.
type RingNode struct {
	Hostname    string        `json:"hostname"`
	ASN         string        `json:"asn"`
	City        string        `json:"city"`
	CountryCode string        `json:"countrycode"`
	Continent   string        `json:"continent"`
	Company     string        `json:"company"`
	Status      ChannelStatus `json:"-"`
}

// ShortName returns the hostname without the ring domain suffix.
func (n RingNode) ShortName() string {
	name, _, _ := strings.Cut(n.Hostname, ".")
	return name
}

// Поля, по которым можно фильтровать узлы в /probe.
const (
	FilterNode        = "node"
	FilterASN         = "asn"
	FilterCity        = "city"
	FilterCountryCode = "countrycode"
	FilterContinent   = "continent"
	FilterCompany     = "company"
)

// FilterFields lists the filterable dimensions in display order.
var FilterFields = []string{
	FilterNode,
	FilterASN,
	FilterCity,
	FilterCountryCode,
	FilterContinent,
	FilterCompany,
}

// Filters maps a dimension to the set of accepted values, lowercased.
type Filters map[string]map[string]struct{}

// MultiValueFields returns the dimensions for which more than one value
// was requested, in FilterFields order. These drive balanced sampling.
func (f Filters) MultiValueFields() []string {
	var fields []string
	for _, field := range FilterFields {
		if len(f[field]) > 1 {
			fields = append(fields, field)
		}
	}
	return fields
}

// FieldValue returns the node's value for a filter dimension. The "node"
// dimension matches the short hostname.
func (n RingNode) FieldValue(field string) string {
	switch field {
	case FilterNode:
		return n.ShortName()
	case FilterASN:
		return n.ASN
	case FilterCity:
		return n.City
	case FilterCountryCode:
		return n.CountryCode
	case FilterContinent:
		return n.Continent
	case FilterCompany:
		return n.Company
	}
	return ""
}

// Matches reports whether the node satisfies every filter predicate.
func (n RingNode) Matches(f Filters) bool {
	for field, allowed := range f {
		if len(allowed) == 0 {
			continue
		}
		if _, ok := allowed[strings.ToLower(n.FieldValue(field))]; !ok {
			return false
		}
	}
	return true
}
