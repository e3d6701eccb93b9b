// Package adapterfile loads adapter definitions from HCL files.
//
//	adapter "nessus-prod" {
//	  tenant   = "acme"
//	  name     = "Nessus production"
//	  kind     = "vulnerability_scanner"
//	  base_url = "https://nessus.acme.internal"
//
//	  credentials {
//	    auth_type = "api_key"
//	    api_key   = env.NESSUS_API_KEY
//	  }
//
//	  metadata = {
//	    implementation = "generic_scanner"
//	  }
//	}
package adapterfile

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
	"github.com/pratik-mahalle/complyflow/internal/pkg/logger"
	"github.com/pratik-mahalle/complyflow/internal/pkg/validator"
)

type fileSpec struct {
	Adapters []adapterSpec `hcl:"adapter,block"`
}

type adapterSpec struct {
	ID              string           `hcl:"id,label"`
	Tenant          string           `hcl:"tenant"`
	Name            string           `hcl:"name"`
	Kind            string           `hcl:"kind"`
	BaseURL         string           `hcl:"base_url,optional"`
	Enabled         *bool            `hcl:"enabled,optional"`
	PollingInterval string           `hcl:"polling_interval,optional"`
	Credentials     *credentialsSpec `hcl:"credentials,block"`
	Metadata        hcl.Expression   `hcl:"metadata,optional"`
}

type credentialsSpec struct {
	AuthType           string   `hcl:"auth_type"`
	APIKey             string   `hcl:"api_key,optional"`
	HeaderName         string   `hcl:"header_name,optional"`
	Username           string   `hcl:"username,optional"`
	Password           string   `hcl:"password,optional"`
	ClientID           string   `hcl:"client_id,optional"`
	ClientSecret       string   `hcl:"client_secret,optional"`
	TokenURL           string   `hcl:"token_url,optional"`
	Scopes             []string `hcl:"scopes,optional"`
	CertificatePath    string   `hcl:"certificate_path,optional"`
	KeyPath            string   `hcl:"key_path,optional"`
	CAPath             string   `hcl:"ca_path,optional"`
	RoleARN            string   `hcl:"role_arn,optional"`
	AccessKeyID        string   `hcl:"access_key_id,optional"`
	SecretAccessKey    string   `hcl:"secret_access_key,optional"`
	ServiceAccountJSON string   `hcl:"service_account_json,optional"`
}

// Environ returns the process environment as a map for the env variable
func Environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

func evalContext(env map[string]string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vars[k] = cty.StringVal(v)
	}
	envVal := cty.EmptyObjectVal
	if len(vars) > 0 {
		envVal = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envVal},
	}
}

// Load reads and decodes an adapter file
func Load(path string, env map[string]string) ([]*adapter.Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read adapter file: %w", err)
	}
	return Parse(path, src, env)
}

// Parse decodes adapter definitions. The filename extension selects native
// HCL (.hcl) or JSON (.json) syntax.
func Parse(filename string, src []byte, env map[string]string) ([]*adapter.Config, error) {
	ctx := evalContext(env)

	var spec fileSpec
	if err := hclsimple.Decode(filename, src, ctx, &spec); err != nil {
		return nil, errors.BadRequest(fmt.Sprintf("invalid adapter file: %v", err))
	}

	seen := make(map[string]bool, len(spec.Adapters))
	out := make([]*adapter.Config, 0, len(spec.Adapters))
	for _, a := range spec.Adapters {
		if seen[a.ID] {
			return nil, errors.Conflict(fmt.Sprintf("adapter %q is defined twice", a.ID))
		}
		seen[a.ID] = true

		cfg, err := a.toConfig(ctx)
		if err != nil {
			return nil, err
		}
		if verrs := validator.Validate(cfg); len(verrs) > 0 {
			return nil, errors.ValidationError(fmt.Sprintf("adapter %q is invalid", a.ID), verrs)
		}
		if !cfg.Kind.IsValid() {
			return nil, errors.ConfigurationError(a.ID, "kind", fmt.Sprintf("unsupported kind %q", a.Kind))
		}
		if field := cfg.Credentials.MissingField(); field != "" {
			return nil, errors.ConfigurationError(a.ID, "credentials."+field, "required for auth type "+string(cfg.Credentials.AuthType))
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (a adapterSpec) toConfig(ctx *hcl.EvalContext) (*adapter.Config, error) {
	cfg := &adapter.Config{
		ID:       a.ID,
		TenantID: a.Tenant,
		Name:     a.Name,
		Kind:     adapter.Kind(a.Kind),
		BaseURL:  a.BaseURL,
		Enabled:  true,
	}
	if a.Enabled != nil {
		cfg.Enabled = *a.Enabled
	}

	if a.PollingInterval != "" {
		d, err := time.ParseDuration(a.PollingInterval)
		if err != nil {
			return nil, errors.ConfigurationError(a.ID, "polling_interval", err.Error())
		}
		cfg.PollingInterval = d
	}

	if c := a.Credentials; c != nil {
		cfg.Credentials = adapter.Credentials{
			AuthType:           adapter.AuthType(c.AuthType),
			APIKey:             c.APIKey,
			HeaderName:         c.HeaderName,
			Username:           c.Username,
			Password:           c.Password,
			ClientID:           c.ClientID,
			ClientSecret:       c.ClientSecret,
			TokenURL:           c.TokenURL,
			Scopes:             c.Scopes,
			CertificatePath:    c.CertificatePath,
			KeyPath:            c.KeyPath,
			CAPath:             c.CAPath,
			RoleARN:            c.RoleARN,
			AccessKeyID:        c.AccessKeyID,
			SecretAccessKey:    c.SecretAccessKey,
			ServiceAccountJSON: c.ServiceAccountJSON,
		}
	}

	if a.Metadata != nil {
		// an omitted optional attribute decodes to a null expression
		if v, diags := a.Metadata.Value(ctx); !diags.HasErrors() && !v.IsNull() {
			var meta map[string]string
			if diags := gohcl.DecodeExpression(a.Metadata, ctx, &meta); diags.HasErrors() {
				return nil, errors.ConfigurationError(a.ID, "metadata", diags.Error())
			}
			cfg.Metadata = meta
		}
	}
	return cfg, nil
}

// Import upserts every definition into the configuration store and returns
// how many were written. The first failure stops the import.
func Import(ctx context.Context, repo adapter.ConfigRepository, cfgs []*adapter.Config, log *logger.Logger) (int, error) {
	if log == nil {
		log = logger.Nop()
	}
	n := 0
	for _, cfg := range cfgs {
		if err := repo.Upsert(ctx, cfg); err != nil {
			return n, err
		}
		n++
		log.WithFields(map[string]interface{}{
			"tenant_id":    cfg.TenantID,
			"adapter_id":   cfg.ID,
			"adapter_kind": cfg.Kind,
		}).Info("Adapter configuration imported")
	}
	return n, nil
}
