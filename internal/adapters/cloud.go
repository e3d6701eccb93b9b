package adapters

import (
	"encoding/json"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

// Evidence types produced by cloud adapters
const (
	evidenceStorageConfig = "storage_configuration"
	evidenceNetworkConfig = "network_configuration"
	evidenceComputeConfig = "compute_configuration"
)

// cloudTopics maps the normalized posture records of every cloud adapter
func cloudTopics(rec adapter.Record) []string {
	var topics []string
	if _, ok := flag(rec, "encrypted", "encryption_at_host"); ok {
		topics = append(topics, topicEncryptionAtRest)
	}
	if _, ok := flag(rec, "public_access_blocked", "uniform_access"); ok {
		topics = append(topics, topicPublicAccess)
	}
	if _, ok := flag(rec, "https_only"); ok {
		topics = append(topics, topicEncryptionInTransit)
	} else if str(rec, "min_tls_version") != "" {
		topics = append(topics, topicEncryptionInTransit)
	}
	if _, ok := rec["open_ingress"]; ok {
		topics = append(topics, topicNetworkSecurity)
	}
	if _, ok := flag(rec, "secure_boot"); ok {
		topics = append(topics, topicSecureConfiguration)
	}
	return topics
}

// cloudEvidence turns a posture record into evidence
func cloudEvidence(evType, externalID, title, severity string, rec adapter.Record) adapter.CollectedEvidence {
	raw, _ := json.Marshal(rec)
	return adapter.CollectedEvidence{
		ExternalID: externalID,
		Type:       evType,
		Title:      title,
		RawData:    raw,
		ControlIDs: mapRecords([]adapter.Record{rec}, cloudTopics),
		Severity:   severity,
		Status:     adapter.EvidenceValid,
	}
}

func derefBool(b *bool) bool {
	return b != nil && *b
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
