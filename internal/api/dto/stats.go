package dto

type Stats struct {
	TotalRequests      int64 `json:"total_requests"`
	BlockedIPsCount    int64 `json:"blocked_ips_count"`
	SuspiciousIPsCount int64 `json:"suspicious_ips_count"`
	UniqueCountries    int64 `json:"unique_countries"`
	RequestsToday      int64 `json:"requests_today"`
}
