package dto

type IPCount struct {
	IP      string `json:"ip"`
	Country string `json:"country,omitempty"`
	Count   int64  `json:"count"`
}

type PathCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

type CountryCount struct {
	Country string `json:"country"`
	Count   int64  `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type Analytics struct {
	Period        string         `json:"period"`
	TotalRequests int64          `json:"total_requests"`
	UniqueIPs     int64          `json:"unique_ips"`
	TopPaths      []PathCount    `json:"top_paths"`
	TopCountries  []CountryCount `json:"top_countries"`
	TopIPs        []IPCount      `json:"top_ips"`
	RequestsByDay []DayCount     `json:"requests_by_day"`
}
