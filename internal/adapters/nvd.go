package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
)

// ImplNVD pulls CVE advisories from the National Vulnerability Database
const ImplNVD = "nvd"

const (
	nvdDefaultURL   = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	nvdKeyHeader    = "apiKey"
	nvdPageSize     = 2000
	nvdMaxWindow    = 120 * 24 * time.Hour
	nvdDefaultSince = 7 * 24 * time.Hour
	nvdTimeLayout   = "2006-01-02T15:04:05.000Z"

	// Metadata keys narrowing the CVE query to the tenant's stack
	MetadataNVDKeyword = "keyword"
	MetadataNVDCPEName = "cpe_name"
)

type nvdResponse struct {
	ResultsPerPage  int `json:"resultsPerPage"`
	StartIndex      int `json:"startIndex"`
	TotalResults    int `json:"totalResults"`
	Vulnerabilities []struct {
		CVE json.RawMessage `json:"cve"`
	} `json:"vulnerabilities"`
}

type nvdCVE struct {
	ID           string `json:"id"`
	Published    string `json:"published"`
	LastModified string `json:"lastModified"`
	VulnStatus   string `json:"vulnStatus"`
	Descriptions []struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"descriptions"`
	Metrics struct {
		V31 []nvdMetric `json:"cvssMetricV31"`
		V30 []nvdMetric `json:"cvssMetricV30"`
		V2  []nvdMetric `json:"cvssMetricV2"`
	} `json:"metrics"`
	Weaknesses []struct {
		Description []struct {
			Value string `json:"value"`
		} `json:"description"`
	} `json:"weaknesses"`
}

type nvdMetric struct {
	BaseSeverity string `json:"baseSeverity"`
	CVSSData     struct {
		BaseScore    float64 `json:"baseScore"`
		VectorString string  `json:"vectorString"`
	} `json:"cvssData"`
}

// nvdAdapter walks the CVE feed by last-modified window
type nvdAdapter struct {
	*Base
}

func newNVDAdapter(cfg adapter.Config, deps Deps) (adapter.Adapter, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = nvdDefaultURL
	}
	if cfg.Credentials.AuthType == adapter.AuthAPIKey && cfg.Credentials.HeaderName == "" {
		cfg.Credentials.HeaderName = nvdKeyHeader
	}
	base, err := newBase(cfg, deps)
	if err != nil {
		return nil, err
	}
	a := &nvdAdapter{Base: base}
	base.drv = a
	return a, nil
}

func (a *nvdAdapter) checkConfig() error { return nil }

func (a *nvdAdapter) probe(ctx context.Context) (map[string]interface{}, error) {
	target := a.cfg.BaseURL + "?resultsPerPage=1"
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
		"endpoint":    a.cfg.BaseURL,
	}, nil
}

// nvdWindow returns the last-modified range of one collection. The feed rejects
// ranges longer than 120 days, so older starts are moved forward.
func nvdWindow(opts adapter.CollectionOptions, now time.Time) (time.Time, time.Time) {
	until := now
	if opts.Until != nil {
		until = *opts.Until
	}
	since := until.Add(-nvdDefaultSince)
	if opts.Since != nil {
		since = *opts.Since
	}
	if until.Sub(since) > nvdMaxWindow {
		since = until.Add(-nvdMaxWindow)
	}
	return since.UTC(), until.UTC()
}

func (a *nvdAdapter) pageURL(since, until time.Time, start, size int) (string, error) {
	u, err := url.Parse(a.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("lastModStartDate", since.Format(nvdTimeLayout))
	q.Set("lastModEndDate", until.Format(nvdTimeLayout))
	q.Set("startIndex", strconv.Itoa(start))
	q.Set("resultsPerPage", strconv.Itoa(size))
	if kw := a.cfg.Meta(MetadataNVDKeyword, ""); kw != "" {
		q.Set("keywordSearch", kw)
	}
	if cpe := a.cfg.Meta(MetadataNVDCPEName, ""); cpe != "" {
		q.Set("cpeName", cpe)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (a *nvdAdapter) collect(ctx context.Context, opts adapter.CollectionOptions) batch {
	var out batch
	since, until := nvdWindow(opts, time.Now())

	size := nvdPageSize
	if opts.Limit > 0 && opts.Limit < size {
		size = opts.Limit
	}

	start := 0
	for page := 0; page < maxPages; page++ {
		target, err := a.pageURL(since, until, start, size)
		if err != nil {
			out.fatal = fetchFailure(err)
			return out
		}

		var resp nvdResponse
		if err := a.exec.DoJSON(ctx, http.MethodGet, target, a.headers, nil, &resp); err != nil {
			out.fatal = fetchFailure(err)
			return out
		}

		for i, v := range resp.Vulnerabilities {
			out.processed++
			ev, keep, err := a.toEvidence(v.CVE)
			if err != nil {
				out.recordError(adapter.ErrCodeRecordInvalid, err.Error(), map[string]interface{}{
					"start_index": start,
					"index":       i,
				})
				continue
			}
			if !keep || !wantedType(opts, ev.Type) {
				out.skipped++
				continue
			}
			out.evidence = append(out.evidence, ev)
		}

		start += len(resp.Vulnerabilities)
		if len(resp.Vulnerabilities) == 0 || start >= resp.TotalResults {
			break
		}
		if opts.Limit > 0 && len(out.evidence) >= opts.Limit {
			break
		}
	}
	return out
}

// toEvidence converts one CVE. Rejected CVEs are dropped.
func (a *nvdAdapter) toEvidence(raw json.RawMessage) (adapter.CollectedEvidence, bool, error) {
	var cve nvdCVE
	if err := json.Unmarshal(raw, &cve); err != nil {
		return adapter.CollectedEvidence{}, false, fmt.Errorf("decode cve: %w", err)
	}
	if cve.ID == "" {
		return adapter.CollectedEvidence{}, false, fmt.Errorf("cve without id")
	}
	if strings.EqualFold(cve.VulnStatus, "rejected") {
		return adapter.CollectedEvidence{}, false, nil
	}

	rec := cve.record()
	ev := adapter.CollectedEvidence{
		ExternalID:   cve.ID,
		Type:         "vulnerability_advisory",
		Title:        cve.ID,
		Description:  cve.description(),
		RawData:      raw,
		SourceSystem: ImplNVD,
		ControlIDs:   a.MapToControls([]adapter.Record{rec}),
		Severity:     str(rec, "severity"),
		Status:       adapter.EvidenceValid,
	}
	if d := ev.Description; d != "" {
		ev.Title = cve.ID + ": " + truncateText(d, 80)
	}
	if t, ok := parseNVDTime(cve.LastModified); ok {
		ev.CollectedAt = t
	}
	base := ev.CollectedAt
	if base.IsZero() {
		base = time.Now()
	}
	exp := base.Add(30 * 24 * time.Hour)
	ev.ExpiresAt = &exp
	return ev, true, nil
}

// record flattens the fields control mapping looks at
func (c nvdCVE) record() adapter.Record {
	rec := adapter.Record{"id": c.ID}
	severity, score := c.severity()
	if severity != "" {
		rec["severity"] = severity
		rec["cvss_score"] = score
	}
	var cwes []interface{}
	for _, w := range c.Weaknesses {
		for _, d := range w.Description {
			cwes = append(cwes, d.Value)
		}
	}
	if len(cwes) > 0 {
		rec["cwe"] = cwes
	}
	return rec
}

func (c nvdCVE) description() string {
	for _, d := range c.Descriptions {
		if d.Lang == "en" {
			return d.Value
		}
	}
	return ""
}

// severity prefers CVSS v3.1, then v3.0, then v2 which only carries a score
func (c nvdCVE) severity() (string, float64) {
	for _, metrics := range [][]nvdMetric{c.Metrics.V31, c.Metrics.V30, c.Metrics.V2} {
		if len(metrics) == 0 {
			continue
		}
		m := metrics[0]
		if s := strings.ToLower(m.BaseSeverity); s != "" {
			return s, m.CVSSData.BaseScore
		}
		return cvssSeverity(m.CVSSData.BaseScore), m.CVSSData.BaseScore
	}
	return "", 0
}

func cvssSeverity(score float64) string {
	switch {
	case score >= 9.0:
		return "critical"
	case score >= 7.0:
		return "high"
	case score >= 4.0:
		return "medium"
	case score > 0:
		return "low"
	default:
		return "info"
	}
}

func parseNVDTime(v string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// wantedType reports whether an evidence type passes the Types filter
func wantedType(opts adapter.CollectionOptions, t string) bool {
	if len(opts.Types) == 0 {
		return true
	}
	for _, want := range opts.Types {
		if want == t {
			return true
		}
	}
	return false
}

func nvdTopics(rec adapter.Record) []string {
	topics := []string{topicVulnerabilityManagement}
	if s := str(rec, "severity"); s == "critical" || s == "high" {
		topics = append(topics, topicCriticalVulnerability)
	}
	for _, cwe := range stringList(rec, "cwe") {
		// CWE-16 Configuration, CWE-1188 insecure defaults
		if cwe == "CWE-16" || cwe == "CWE-1188" {
			topics = append(topics, topicSecureConfiguration)
			break
		}
	}
	return topics
}

// MapToControls maps CVE records to control identifiers
func (a *nvdAdapter) MapToControls(records []adapter.Record) []string {
	return mapRecords(records, nvdTopics)
}
