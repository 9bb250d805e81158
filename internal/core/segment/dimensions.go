package segment

// Dimension maps a public segment name onto a raw visit log column
type Dimension struct {
	Name   string
	Column string

	// Restricted dimensions need elevated access before they can be
	// used in an expression (they expose visitor-identifying data)
	Restricted bool
}

// Registry resolves dimension names during parsing
type Registry map[string]Dimension

// Lookup returns the dimension for name
func (r Registry) Lookup(name string) (Dimension, bool) {
	d, ok := r[name]
	return d, ok
}

// DefaultRegistry covers the dimensions the bundled aggregators filter on,
// all columns of the log_visit table
func DefaultRegistry() Registry {
	dims := []Dimension{
		{Name: "browserName", Column: "config_browser_name"},
		{Name: "browserVersion", Column: "config_browser_version"},
		{Name: "operatingSystem", Column: "config_os"},
		{Name: "deviceType", Column: "config_device_type"},
		{Name: "countryCode", Column: "location_country"},
		{Name: "regionCode", Column: "location_region"},
		{Name: "city", Column: "location_city"},
		{Name: "visitorType", Column: "visitor_returning"},
		{Name: "referrerType", Column: "referer_type"},
		{Name: "referrerName", Column: "referer_name"},
		{Name: "referrerKeyword", Column: "referer_keyword"},
		{Name: "visitIp", Column: "location_ip", Restricted: true},
		{Name: "visitorId", Column: "idvisitor", Restricted: true},
	}
	r := make(Registry, len(dims))
	for _, d := range dims {
		r[d.Name] = d
	}
	return r
}
