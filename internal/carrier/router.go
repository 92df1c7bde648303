package carrier

import "strings"

// Decision is the routing outcome for one phone number.
type Decision struct {
	IsDomestic        bool
	Carrier           string
	UsePrimaryGateway bool
}

// prefixEntry maps the two digits after the country code to an operator and
// the gateway that should carry its traffic.
type prefixEntry struct {
	prefix  string
	carrier string
	primary bool
}

// Router decides which SMS gateway carries a message based on the number's
// operator prefix. The table is ordered and total: unmapped domestic prefixes
// and foreign numbers fall through to the fallback gateway.
type Router struct {
	countryCode string
	table       []prefixEntry
}

// defaultTable covers the domestic operators. Ucell is pinned to the fallback
// gateway: its deliverability through the primary broker has a history of
// silent drops.
var defaultTable = []prefixEntry{
	{"90", "Beeline", true},
	{"91", "Beeline", true},
	{"93", "Ucell", false},
	{"94", "Ucell", false},
	{"95", "Uzmobile", true},
	{"99", "Uzmobile", true},
	{"97", "Mobiuz", true},
	{"88", "Mobiuz", true},
	{"33", "Humans", true},
	{"77", "UMS", true},
	{"98", "Perfectum", true},
}

// NewRouter returns a router for the given country code, using the default
// operator table.
func NewRouter(countryCode string) *Router {
	if countryCode == "" {
		countryCode = "998"
	}
	return &Router{countryCode: countryCode, table: defaultTable}
}

// TableEntry is one configured prefix mapping.
type TableEntry struct {
	Prefix  string `mapstructure:"prefix"`
	Carrier string `mapstructure:"carrier"`
	Primary bool   `mapstructure:"primary"`
}

// NewRouterWithTable allows a reconfigured operator table, e.g. from config.
func NewRouterWithTable(countryCode string, entries []TableEntry) *Router {
	r := NewRouter(countryCode)
	if len(entries) == 0 {
		return r
	}
	table := make([]prefixEntry, 0, len(entries))
	for _, e := range entries {
		table = append(table, prefixEntry{prefix: e.Prefix, carrier: e.Carrier, primary: e.Primary})
	}
	r.table = table
	return r
}

// Route determines whether the number is domestic, which operator owns it and
// which gateway should carry the message. Pure and deterministic.
func (r *Router) Route(phone string) Decision {
	number := strings.TrimPrefix(strings.TrimSpace(phone), "+")

	if !r.isDomestic(number) {
		return Decision{IsDomestic: false, Carrier: "International", UsePrimaryGateway: false}
	}

	operator := number[len(r.countryCode) : len(r.countryCode)+2]
	for _, e := range r.table {
		if e.prefix == operator {
			return Decision{IsDomestic: true, Carrier: e.carrier, UsePrimaryGateway: e.primary}
		}
	}
	return Decision{IsDomestic: true, Carrier: "Unknown", UsePrimaryGateway: false}
}

func (r *Router) isDomestic(number string) bool {
	if len(number) != 12 || !strings.HasPrefix(number, r.countryCode) {
		return false
	}
	for _, c := range number {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
