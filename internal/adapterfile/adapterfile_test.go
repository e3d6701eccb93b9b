package adapterfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/testutil"
)

const sample = `
adapter "nessus-prod" {
  tenant           = "acme"
  name             = "Nessus production"
  kind             = "vulnerability_scanner"
  base_url         = "https://nessus.acme.internal"
  polling_interval = "6h"

  credentials {
    auth_type   = "api_key"
    api_key     = env.NESSUS_API_KEY
    header_name = "X-ApiKeys"
  }

  metadata = {
    implementation = "generic_scanner"
    health_path    = "/server/status"
  }
}

adapter "aws-prod" {
  tenant  = "acme"
  name    = "AWS production"
  kind    = "cloud_provider"
  enabled = false

  credentials {
    auth_type = "iam_role"
    role_arn  = "arn:aws:iam::123456789012:role/complyflow"
  }
}
`

func TestParse(t *testing.T) {
	cfgs, err := Parse("adapters.hcl", []byte(sample), map[string]string{"NESSUS_API_KEY": "secret-key"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("Parse() = %d adapters, want 2", len(cfgs))
	}

	nessus := cfgs[0]
	if nessus.ID != "nessus-prod" || nessus.TenantID != "acme" || nessus.Kind != adapter.KindVulnerabilityScanner {
		t.Errorf("nessus = %+v", nessus)
	}
	if nessus.Credentials.APIKey != "secret-key" {
		t.Errorf("api_key = %q, want value from env", nessus.Credentials.APIKey)
	}
	if nessus.PollingInterval != 6*time.Hour {
		t.Errorf("polling interval = %s, want 6h", nessus.PollingInterval)
	}
	if !nessus.Enabled {
		t.Error("enabled should default to true")
	}
	if nessus.Implementation() != "generic_scanner" || nessus.Meta(adapter.MetadataHealthPath, "") != "/server/status" {
		t.Errorf("metadata = %v", nessus.Metadata)
	}

	aws := cfgs[1]
	if aws.Enabled {
		t.Error("aws-prod should be disabled")
	}
	if aws.Metadata != nil {
		t.Errorf("aws-prod metadata = %v, want none", aws.Metadata)
	}
}

// block renders one adapter block with the given body lines
func block(id string, lines ...string) string {
	out := "adapter \"" + id + "\" {\n"
	for _, l := range lines {
		out += "  " + l + "\n"
	}
	return out + "}\n"
}

func TestParse_Errors(t *testing.T) {
	common := []string{`tenant = "t"`, `name = "a"`}
	iamRole := "credentials {\n    auth_type = \"iam_role\"\n  }"

	tests := []struct {
		name     string
		src      string
		wantCode string
	}{
		{
			name:     "missing env variable",
			src:      block("a", append(common, `kind = "siem"`, "credentials {\n    auth_type = \"api_key\"\n    api_key = env.MISSING\n  }")...),
			wantCode: errors.ErrCodeBadRequest,
		},
		{
			name:     "missing required credential",
			src:      block("a", append(common, `kind = "siem"`, "credentials {\n    auth_type = \"basic\"\n    username = \"u\"\n  }")...),
			wantCode: errors.ErrCodeValidation,
		},
		{
			name:     "unknown kind",
			src:      block("a", append(common, `kind = "mainframe"`, iamRole)...),
			wantCode: errors.ErrCodeConfiguration,
		},
		{
			name:     "bad interval",
			src:      block("a", append(common, `kind = "siem"`, `polling_interval = "often"`, iamRole)...),
			wantCode: errors.ErrCodeConfiguration,
		},
		{
			name:     "duplicate id",
			src:      block("a", append(common, `kind = "siem"`, iamRole)...) + block("a", append(common, `kind = "siem"`, iamRole)...),
			wantCode: errors.ErrCodeConflict,
		},
		{
			name:     "syntax error",
			src:      `adapter "a" {`,
			wantCode: errors.ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("adapters.hcl", []byte(tt.src), map[string]string{})
			if !errors.HasCode(err, tt.wantCode) {
				t.Errorf("Parse() error = %v, want %s", err, tt.wantCode)
			}
		})
	}
}

func TestLoadAndImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adapters.hcl")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfgs, err := Load(path, map[string]string{"NESSUS_API_KEY": "k"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	repo := testutil.NewMockAdapterConfigRepository()
	n, err := Import(context.Background(), repo, cfgs, logger.Nop())
	if err != nil || n != 2 {
		t.Fatalf("Import() = %d, %v, want 2, nil", n, err)
	}

	all, _ := repo.List(context.Background(), "acme")
	if len(all) != 2 {
		t.Errorf("stored = %d, want 2", len(all))
	}
	enabled, _ := repo.ListEnabled(context.Background(), "acme")
	if len(enabled) != 1 || enabled[0].ID != "nessus-prod" {
		t.Errorf("enabled = %v, want nessus-prod only", enabled)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.hcl"), nil); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}
