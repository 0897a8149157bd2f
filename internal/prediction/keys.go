package prediction

import (
	"fmt"
	"strconv"
	"time"
)

// Cache keys are a domain prefix plus the identifying entity ids. Dashboard
// code builds the same strings, so the formats here are load-bearing.

// NoShowKey returns the cache key for a no-show prediction.
func NoShowKey(appointmentID string) string {
	return "no_show_" + appointmentID
}

// AuthKey returns the cache key for an authorization recommendation.
func AuthKey(patientID, procedureCode string) string {
	return fmt.Sprintf("auth_%s_%s", patientID, procedureCode)
}

// ScheduleKey returns the cache key for a schedule optimization run. The
// window start collapses to its ISO date: one cached plan per provider-day.
func ScheduleKey(providerID string, windowStart time.Time) string {
	return fmt.Sprintf("schedule_%s_%s", providerID, windowStart.UTC().Format(time.DateOnly))
}

// DocumentKey returns the cache key for a document extraction.
func DocumentKey(documentID string) string {
	return "doc_" + documentID
}

// InputHash computes a 32-bit rolling hash (h = h*31 + code point, wrapped
// at 32 bits) of the serialized heuristic input, rendered as lowercase hex.
// Not cryptographic: collisions are acceptable for cache bookkeeping and
// nothing security-sensitive may depend on it.
func InputHash(serialized string) string {
	var h uint32
	for _, r := range serialized {
		h = h*31 + uint32(r)
	}
	return strconv.FormatUint(uint64(h), 16)
}
