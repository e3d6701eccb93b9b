package adapters

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// maxPages bounds cursor pagination of one collection
const maxPages = 20

// restProfile describes how a generic REST integration exposes evidence
type restProfile struct {
	implementation string
	kind           adapter.Kind
	healthPath     string
	listPath       string
	itemKeys       []string
	evidenceType   string
	validity       time.Duration
	topics         func(adapter.Record) []string
	severity       func(adapter.Record) string
}

// restAdapter pulls one JSON listing endpoint through the retry executor
type restAdapter struct {
	*Base
	profile restProfile
}

func newRESTAdapter(profile restProfile) Constructor {
	return func(cfg adapter.Config, deps Deps) (adapter.Adapter, error) {
		base, err := newBase(cfg, deps)
		if err != nil {
			return nil, err
		}
		a := &restAdapter{Base: base, profile: profile}
		base.drv = a
		return a, nil
	}
}

func (a *restAdapter) checkConfig() error {
	if a.cfg.BaseURL == "" {
		return errors.ConfigurationError(a.cfg.ID, "base_url", "required for REST integrations")
	}
	return nil
}

func (a *restAdapter) probe(ctx context.Context) (map[string]interface{}, error) {
	target := a.endpoint(a.cfg.Meta(adapter.MetadataHealthPath, a.profile.healthPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range a.headers {
		req.Header[k] = vs
	}
	resp, err := a.probeEx.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"endpoint":    target,
	}, nil
}

func (a *restAdapter) collect(ctx context.Context, opts adapter.CollectionOptions) batch {
	var out batch

	next, err := a.firstPage(opts)
	if err != nil {
		out.fatal = fetchFailure(err)
		return out
	}

	for page := 0; next != "" && page < maxPages; page++ {
		var body json.RawMessage
		if err := a.exec.DoJSON(ctx, http.MethodGet, next, a.headers, nil, &body); err != nil {
			out.fatal = fetchFailure(err)
			return out
		}

		items, cursor, err := a.splitPage(body)
		if err != nil {
			out.fatal = parseFailure(err)
			return out
		}

		for i, raw := range items {
			out.processed++
			ev, err := a.toEvidence(raw)
			if err != nil {
				out.recordError(adapter.ErrCodeRecordInvalid, err.Error(), map[string]interface{}{
					"page":  page,
					"index": i,
				})
				continue
			}
			if !wantedType(opts, ev.Type) {
				out.skipped++
				continue
			}
			out.evidence = append(out.evidence, ev)
		}

		if opts.Limit > 0 && len(out.evidence) >= opts.Limit {
			break
		}
		if next, err = a.nextURL(cursor, next); err != nil {
			out.fatal = fetchFailure(err)
			return out
		}
	}
	return out
}

func (a *restAdapter) firstPage(opts adapter.CollectionOptions) (string, error) {
	u, err := url.Parse(a.endpoint(a.cfg.Meta(adapter.MetadataEndpoint, a.profile.listPath)))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	if opts.Since != nil {
		q.Set("since", opts.Since.UTC().Format(time.RFC3339))
	}
	if opts.Until != nil {
		q.Set("until", opts.Until.UTC().Format(time.RFC3339))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// splitPage accepts a bare array or an object holding the array under one of
// the profile item keys. A "next" link or "next_cursor" continues the listing.
func (a *restAdapter) splitPage(body json.RawMessage) ([]json.RawMessage, string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, "", fmt.Errorf("empty response body")
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", fmt.Errorf("decode item list: %w", err)
		}
		return items, "", nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, "", fmt.Errorf("decode response envelope: %w", err)
	}

	var cursor string
	for _, key := range []string{"next", "next_cursor"} {
		if raw, ok := envelope[key]; ok {
			_ = json.Unmarshal(raw, &cursor)
			if cursor != "" {
				if key == "next_cursor" {
					cursor = "cursor:" + cursor
				}
				break
			}
		}
	}

	for _, key := range a.profile.itemKeys {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, "", fmt.Errorf("decode %q: %w", key, err)
		}
		return items, cursor, nil
	}
	return nil, "", fmt.Errorf("response has none of the keys %s", strings.Join(a.profile.itemKeys, ", "))
}

// nextURL builds the following page from a cursor or a next link. Links are
// resolved against the current page and must stay on the base URL's origin,
// since every request carries the integration credentials.
func (a *restAdapter) nextURL(cursor, current string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	cur, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("invalid page url: %w", err)
	}
	if c, ok := strings.CutPrefix(cursor, "cursor:"); ok {
		q := cur.Query()
		q.Set("cursor", c)
		cur.RawQuery = q.Encode()
		return cur.String(), nil
	}

	ref, err := url.Parse(cursor)
	if err != nil {
		return "", fmt.Errorf("invalid next link: %w", err)
	}
	next := cur.ResolveReference(ref)
	base, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	if !strings.EqualFold(next.Scheme, base.Scheme) || !strings.EqualFold(next.Host, base.Host) {
		return "", fmt.Errorf("next link %s leaves %s://%s", next.Redacted(), base.Scheme, base.Host)
	}
	return next.String(), nil
}

func (a *restAdapter) toEvidence(raw json.RawMessage) (adapter.CollectedEvidence, error) {
	var rec adapter.Record
	if err := json.Unmarshal(raw, &rec); err != nil || rec == nil {
		return adapter.CollectedEvidence{}, fmt.Errorf("record is not a JSON object")
	}

	id := str(rec, "id", "uuid", "key", "external_id")
	if id == "" {
		sum := sha256.Sum256(raw)
		id = "sha256:" + hex.EncodeToString(sum[:8])
	}

	title := str(rec, "title", "name", "summary", "display_name", "email")
	if title == "" {
		title = fmt.Sprintf("%s %s", a.profile.evidenceType, id)
	}

	ev := adapter.CollectedEvidence{
		ExternalID:   id,
		Type:         a.profile.evidenceType,
		Title:        title,
		Description:  str(rec, "description", "details", "message"),
		RawData:      raw,
		SourceSystem: a.sourceSystem(),
		ControlIDs:   a.MapToControls([]adapter.Record{rec}),
		Severity:     a.profile.severity(rec),
		Status:       adapter.EvidenceValid,
	}

	if ts := str(rec, "timestamp", "created_at", "detected_at", "updated_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			ev.CollectedAt = t
		}
	}
	if a.profile.validity > 0 {
		base := ev.CollectedAt
		if base.IsZero() {
			base = time.Now()
		}
		exp := base.Add(a.profile.validity)
		ev.ExpiresAt = &exp
	}
	return ev, nil
}

// MapToControls maps vendor records to control identifiers
func (a *restAdapter) MapToControls(records []adapter.Record) []string {
	return mapRecords(records, a.profile.topics)
}

func normalizedSeverity(rec adapter.Record) string {
	switch s := strings.ToLower(str(rec, "severity", "risk", "priority", "level")); s {
	case "critical", "high", "medium", "low", "info":
		return s
	case "p1", "urgent", "highest":
		return "critical"
	case "p2", "major":
		return "high"
	case "p3", "moderate", "normal":
		return "medium"
	case "p4", "minor", "lowest":
		return "low"
	default:
		return ""
	}
}

var scannerProfile = restProfile{
	implementation: "generic_scanner",
	kind:           adapter.KindVulnerabilityScanner,
	healthPath:     "/api/v1/health",
	listPath:       "/api/v1/findings",
	itemKeys:       []string{"findings", "vulnerabilities", "results", "data"},
	evidenceType:   "vulnerability_scan",
	validity:       30 * 24 * time.Hour,
	severity:       normalizedSeverity,
	topics: func(rec adapter.Record) []string {
		topics := []string{topicVulnerabilityManagement}
		if s := normalizedSeverity(rec); s == "critical" || s == "high" {
			topics = append(topics, topicCriticalVulnerability)
		}
		if containsFold(str(rec, "category", "type"), "config", "misconfig") {
			topics = append(topics, topicSecureConfiguration)
		}
		return topics
	},
}

var siemProfile = restProfile{
	implementation: "generic_siem",
	kind:           adapter.KindSIEM,
	healthPath:     "/api/v1/health",
	listPath:       "/api/v1/alerts",
	itemKeys:       []string{"alerts", "events", "data"},
	evidenceType:   "security_event",
	validity:       90 * 24 * time.Hour,
	severity:       normalizedSeverity,
	topics: func(rec adapter.Record) []string {
		topics := []string{topicSecurityMonitoring}
		if containsFold(str(rec, "status", "state"), "resolved", "closed", "contained") ||
			containsFold(str(rec, "type", "category"), "incident") {
			topics = append(topics, topicIncidentResponse)
		}
		if containsFold(str(rec, "type", "category"), "auth", "login") {
			topics = append(topics, topicAuthentication)
		}
		return topics
	},
}

var identityProfile = restProfile{
	implementation: "generic_idp",
	kind:           adapter.KindIdentityProvider,
	healthPath:     "/api/v1/health",
	listPath:       "/api/v1/users",
	itemKeys:       []string{"users", "members", "data"},
	evidenceType:   "identity_record",
	validity:       30 * 24 * time.Hour,
	severity: func(rec adapter.Record) string {
		if mfa, ok := flag(rec, "mfa_enabled", "mfa", "two_factor"); ok && !mfa {
			return "high"
		}
		return ""
	},
	topics: func(rec adapter.Record) []string {
		topics := []string{topicAuthentication}
		if _, ok := flag(rec, "mfa_enabled", "mfa", "two_factor"); ok {
			topics = append(topics, topicMFA)
		}
		if str(rec, "last_login", "last_login_at", "status") != "" {
			topics = append(topics, topicAccessReview)
		}
		return topics
	},
}

var ticketingProfile = restProfile{
	implementation: "generic_ticketing",
	kind:           adapter.KindTicketing,
	healthPath:     "/api/v1/health",
	listPath:       "/api/v1/tickets",
	itemKeys:       []string{"tickets", "issues", "data"},
	evidenceType:   "change_ticket",
	severity:       normalizedSeverity,
	topics: func(rec adapter.Record) []string {
		topics := []string{topicChangeManagement}
		kind := str(rec, "type", "issue_type", "category")
		labels := strings.Join(stringList(rec, "labels", "tags"), " ")
		if containsFold(kind+" "+labels, "incident") {
			topics = append(topics, topicIncidentResponse)
		}
		if containsFold(kind+" "+labels, "access") {
			topics = append(topics, topicAccessReview)
		}
		return topics
	},
}
