package adapter

import (
	"encoding/json"
	"time"
)

// Kind is the category of external system an adapter talks to
type Kind string

const (
	KindVulnerabilityScanner Kind = "vulnerability_scanner"
	KindSIEM                 Kind = "siem"
	KindIdentityProvider     Kind = "identity_provider"
	KindTicketing            Kind = "ticketing"
	KindCloudProvider        Kind = "cloud_provider"
)

// Kinds lists every supported adapter kind
var Kinds = []Kind{
	KindVulnerabilityScanner,
	KindSIEM,
	KindIdentityProvider,
	KindTicketing,
	KindCloudProvider,
}

// IsValid checks if the kind is one of the supported kinds
func (k Kind) IsValid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// AuthType discriminates the credential shape of an adapter
type AuthType string

const (
	AuthAPIKey      AuthType = "api_key"
	AuthBasic       AuthType = "basic"
	AuthOAuth2      AuthType = "oauth2"
	AuthIAMRole     AuthType = "iam_role"
	AuthCertificate AuthType = "certificate"
)

// Credentials holds the connection secrets of an adapter. Only the fields
// belonging to AuthType are meaningful.
type Credentials struct {
	AuthType AuthType `json:"auth_type" validate:"required,oneof=api_key basic oauth2 iam_role certificate"`

	// api_key
	APIKey     string `json:"api_key,omitempty" validate:"required_if=AuthType api_key"`
	HeaderName string `json:"header_name,omitempty"`

	// basic
	Username string `json:"username,omitempty" validate:"required_if=AuthType basic"`
	Password string `json:"password,omitempty" validate:"required_if=AuthType basic"`

	// oauth2 client credentials
	ClientID     string   `json:"client_id,omitempty" validate:"required_if=AuthType oauth2"`
	ClientSecret string   `json:"client_secret,omitempty" validate:"required_if=AuthType oauth2"`
	TokenURL     string   `json:"token_url,omitempty"`
	Scopes       []string `json:"scopes,omitempty"`

	// certificate (mutual TLS)
	CertificatePath string `json:"certificate_path,omitempty" validate:"required_if=AuthType certificate"`
	KeyPath         string `json:"key_path,omitempty"`
	CAPath          string `json:"ca_path,omitempty"`

	// iam_role; cloud adapters may also use static keys here
	RoleARN            string `json:"role_arn,omitempty"`
	AccessKeyID        string `json:"access_key_id,omitempty"`
	SecretAccessKey    string `json:"secret_access_key,omitempty"`
	ServiceAccountJSON string `json:"service_account_json,omitempty"`
}

// MissingField returns the json name of the first required credential field
// that is empty for the declared auth type, or "" when none is missing.
func (c Credentials) MissingField() string {
	switch c.AuthType {
	case AuthAPIKey:
		if c.APIKey == "" {
			return "api_key"
		}
	case AuthBasic:
		if c.Username == "" {
			return "username"
		}
		if c.Password == "" {
			return "password"
		}
	case AuthOAuth2:
		if c.ClientID == "" {
			return "client_id"
		}
		if c.ClientSecret == "" {
			return "client_secret"
		}
	case AuthCertificate:
		if c.CertificatePath == "" {
			return "certificate_path"
		}
	case AuthIAMRole:
	default:
		return "auth_type"
	}
	return ""
}

// Metadata keys with meaning to the platform
const (
	MetadataImplementation = "implementation"
	MetadataEndpoint       = "endpoint"
	MetadataHealthPath     = "health_path"
	MetadataRegion         = "region"
	MetadataProjectID      = "project_id"
	MetadataSubscriptionID = "subscription_id"
	MetadataAzureTenantID  = "azure_tenant_id"
)

// Config describes one configured integration of a tenant
type Config struct {
	ID              string            `json:"id" validate:"required"`
	TenantID        string            `json:"tenant_id" validate:"required"`
	Name            string            `json:"name" validate:"required"`
	Kind            Kind              `json:"kind" validate:"required"`
	BaseURL         string            `json:"base_url,omitempty" validate:"omitempty,url"`
	Credentials     Credentials       `json:"credentials"`
	PollingInterval time.Duration     `json:"polling_interval"`
	Enabled         bool              `json:"enabled"`
	Metadata        map[string]string `json:"metadata,omitempty"`

	// Maintained by the configuration store
	LastHealthy       *bool      `json:"last_healthy,omitempty"`
	LastHealthAt      *time.Time `json:"last_health_at,omitempty"`
	LastHealthMessage string     `json:"last_health_message,omitempty"`
	LastCollectionAt  *time.Time `json:"last_collection_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Implementation returns the concrete implementation override, if any
func (c Config) Implementation() string {
	return c.Metadata[MetadataImplementation]
}

// Meta returns a metadata value or def when unset
func (c Config) Meta(key, def string) string {
	if v, ok := c.Metadata[key]; ok && v != "" {
		return v
	}
	return def
}

// Clone returns a deep copy so adapters can own their configuration
func (c Config) Clone() Config {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.Credentials.Scopes != nil {
		out.Credentials.Scopes = append([]string(nil), c.Credentials.Scopes...)
	}
	return out
}

// HealthStatus is the outcome of one connectivity probe
type HealthStatus struct {
	Healthy   bool                   `json:"healthy"`
	Timestamp time.Time              `json:"timestamp"`
	Latency   time.Duration          `json:"latency"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// EvidenceStatus is the lifecycle state of an evidence item
type EvidenceStatus string

const (
	EvidenceValid         EvidenceStatus = "valid"
	EvidenceExpired       EvidenceStatus = "expired"
	EvidenceSuperseded    EvidenceStatus = "superseded"
	EvidencePendingReview EvidenceStatus = "pending_review"
)

// CollectedEvidence is one unit of evidence produced by an adapter run
type CollectedEvidence struct {
	ExternalID   string          `json:"external_id"`
	Type         string          `json:"type"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	RawData      json.RawMessage `json:"raw_data,omitempty"`
	CollectedAt  time.Time       `json:"collected_at"`
	SourceSystem string          `json:"source_system"`
	ControlIDs   []string        `json:"control_ids"`
	Severity     string          `json:"severity,omitempty"`
	Status       EvidenceStatus  `json:"status"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
}

// Collection error codes
const (
	ErrCodeNotInitialized = "NOT_INITIALIZED"
	ErrCodeFetchFailed    = "FETCH_FAILED"
	ErrCodeParseFailed    = "PARSE_FAILED"
	ErrCodeRecordInvalid  = "RECORD_INVALID"
	ErrCodeAdapterPanic   = "ADAPTER_PANIC"
	ErrCodeCircuitOpen    = "CIRCUIT_OPEN"
	ErrCodeCancelled      = "CANCELLED"
)

// CollectionError is a structured failure captured during collection
type CollectionError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// CollectionMetadata carries timing and item counts of one collection
type CollectionMetadata struct {
	AdapterID      string        `json:"adapter_id"`
	AdapterKind    Kind          `json:"adapter_kind"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	Duration       time.Duration `json:"duration"`
	ItemsProcessed int           `json:"items_processed"`
	ItemsSkipped   int           `json:"items_skipped"`
}

// CollectionResult is the outcome of one adapter collection. Adapters report
// every failure inside the result instead of returning an error.
type CollectionResult struct {
	Success  bool                `json:"success"`
	Evidence []CollectedEvidence `json:"evidence"`
	Errors   []CollectionError   `json:"errors,omitempty"`
	Metadata CollectionMetadata  `json:"metadata"`
}

// FailedResult builds a failed result carrying a single error
func FailedResult(meta CollectionMetadata, code, message string, details map[string]interface{}) CollectionResult {
	if meta.CompletedAt.IsZero() {
		meta.CompletedAt = time.Now()
	}
	if !meta.StartedAt.IsZero() {
		meta.Duration = meta.CompletedAt.Sub(meta.StartedAt)
	}
	return CollectionResult{
		Success:  false,
		Evidence: []CollectedEvidence{},
		Errors:   []CollectionError{{Code: code, Message: message, Details: details}},
		Metadata: meta,
	}
}

// CollectionOptions narrows one collection run
type CollectionOptions struct {
	Since *time.Time `json:"since,omitempty"`
	Until *time.Time `json:"until,omitempty"`
	Limit int        `json:"limit,omitempty"`
	Types []string   `json:"types,omitempty"`
}

// BulkCollectionResult aggregates one registry collection run
type BulkCollectionResult struct {
	Success            bool                        `json:"success"`
	TotalAdapters      int                         `json:"total_adapters"`
	SuccessfulAdapters int                         `json:"successful_adapters"`
	FailedAdapters     int                         `json:"failed_adapters"`
	TotalEvidence      int                         `json:"total_evidence"`
	Results            map[string]CollectionResult `json:"results"`
	StartedAt          time.Time                   `json:"started_at"`
	Duration           time.Duration               `json:"duration"`
}

// Record is one vendor-specific record before control mapping
type Record map[string]interface{}
