package api

import (
	"net/http"
	"strconv"

	"github.com/sqdops/seedtrack/internal/domain"
)

var validSessionStatuses = map[string]bool{
	string(domain.SessionActive):    true,
	string(domain.SessionCompleted): true,
	string(domain.SessionCancelled): true,
}

// parseLimit parses and validates a limit parameter with default and max values
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// validateSessionStatus checks if a session status filter is valid
func validateSessionStatus(status string) bool {
	return validSessionStatuses[status]
}
