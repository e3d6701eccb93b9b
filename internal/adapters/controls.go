package adapters

import (
	"fmt"
	"strings"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

// Control topics evidence can support
const (
	topicVulnerabilityManagement = "vulnerability_management"
	topicCriticalVulnerability   = "critical_vulnerability"
	topicSecurityMonitoring      = "security_monitoring"
	topicIncidentResponse        = "incident_response"
	topicAuthentication          = "authentication"
	topicMFA                     = "mfa"
	topicAccessReview            = "access_review"
	topicChangeManagement        = "change_management"
	topicEncryptionAtRest        = "encryption_at_rest"
	topicEncryptionInTransit     = "encryption_in_transit"
	topicNetworkSecurity         = "network_security"
	topicPublicAccess            = "public_access"
	topicSecureConfiguration     = "secure_configuration"
)

// controlCatalog maps topics onto SOC 2, ISO 27001 and NIST 800-53 controls
var controlCatalog = map[string][]string{
	topicVulnerabilityManagement: {"CC7.1", "A.12.6.1", "RA-5"},
	topicCriticalVulnerability:   {"CC7.2", "SI-2"},
	topicSecurityMonitoring:      {"CC7.2", "A.12.4.1", "AU-6"},
	topicIncidentResponse:        {"CC7.3", "CC7.4", "A.16.1.5", "IR-4"},
	topicAuthentication:          {"CC6.1", "A.9.4.2", "IA-2"},
	topicMFA:                     {"CC6.1", "A.9.4.2", "IA-2(1)"},
	topicAccessReview:            {"CC6.2", "CC6.3", "A.9.2.5", "AC-2"},
	topicChangeManagement:        {"CC8.1", "A.12.1.2", "CM-3"},
	topicEncryptionAtRest:        {"CC6.1", "A.10.1.1", "SC-28"},
	topicEncryptionInTransit:     {"CC6.7", "A.13.2.1", "SC-8"},
	topicNetworkSecurity:         {"CC6.6", "A.13.1.1", "SC-7"},
	topicPublicAccess:            {"CC6.1", "CC6.6", "AC-3"},
	topicSecureConfiguration:     {"CC7.1", "A.12.5.1", "CM-6"},
}

// controlsFor returns the sorted union of the controls of the given topics
func controlsFor(topics ...string) []string {
	var ids []string
	for _, t := range topics {
		ids = append(ids, controlCatalog[t]...)
	}
	return normalizeControls(ids)
}

// mapRecords applies a per-record topic function over records. Records the
// function cannot interpret contribute nothing.
func mapRecords(records []adapter.Record, topics func(adapter.Record) []string) []string {
	var ids []string
	for _, rec := range records {
		if rec == nil {
			continue
		}
		ids = append(ids, controlsFor(topics(rec)...)...)
		// records may carry explicit control references
		ids = append(ids, stringList(rec, "control_ids", "controls")...)
	}
	return normalizeControls(ids)
}

// str returns the first non-empty scalar under keys, formatted as a string
func str(rec adapter.Record, keys ...string) string {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			if t == float64(int64(t)) {
				return fmt.Sprintf("%d", int64(t))
			}
			return fmt.Sprintf("%g", t)
		case bool:
			return fmt.Sprintf("%t", t)
		case int, int32, int64:
			return fmt.Sprintf("%d", t)
		}
	}
	return ""
}

// flag returns the first boolean under keys. Strings "true"/"false" count.
func flag(rec adapter.Record, keys ...string) (bool, bool) {
	for _, k := range keys {
		switch t := rec[k].(type) {
		case bool:
			return t, true
		case string:
			switch strings.ToLower(t) {
			case "true", "yes", "enabled":
				return true, true
			case "false", "no", "disabled":
				return false, true
			}
		}
	}
	return false, false
}

// stringList returns string elements of the first list under keys
func stringList(rec adapter.Record, keys ...string) []string {
	for _, k := range keys {
		switch t := rec[k].(type) {
		case []interface{}:
			out := make([]string, 0, len(t))
			for _, v := range t {
				if s, ok := v.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		case []string:
			if len(t) > 0 {
				return t
			}
		}
	}
	return nil
}

func containsFold(haystack string, needles ...string) bool {
	h := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(h, n) {
			return true
		}
	}
	return false
}
