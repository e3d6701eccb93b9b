package adapters

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	compute "cloud.google.com/go/compute/apiv1"
	"cloud.google.com/go/compute/apiv1/computepb"
	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// gcsPosture and gceInventory are the slices of the GCP clients the adapter reads
type gcsPosture interface {
	buckets(ctx context.Context, projectID string) ([]*storage.BucketAttrs, error)
}

type gceInventory interface {
	instances(ctx context.Context, projectID string) ([]*computepb.Instance, error)
}

type gcpClients struct {
	storage *storage.Client
	compute *compute.InstancesClient
}

func (c *gcpClients) buckets(ctx context.Context, projectID string) ([]*storage.BucketAttrs, error) {
	var out []*storage.BucketAttrs
	it := c.storage.Buckets(ctx, projectID)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, attrs)
	}
}

func (c *gcpClients) instances(ctx context.Context, projectID string) ([]*computepb.Instance, error) {
	var out []*computepb.Instance
	it := c.compute.AggregatedList(ctx, &computepb.AggregatedListInstancesRequest{Project: projectID})
	for {
		pair, err := it.Next()
		if err == iterator.Done {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if pair.Value != nil {
			out = append(out, pair.Value.Instances...)
		}
	}
}

// gcpAdapter reads Cloud Storage and Compute Engine posture of one project
type gcpAdapter struct {
	*Base

	mu  sync.Mutex
	gcs gcsPosture
	gce gceInventory
}

func newGCPAdapter(cfg adapter.Config, deps Deps) (adapter.Adapter, error) {
	base, err := newBase(cfg, deps)
	if err != nil {
		return nil, err
	}
	a := &gcpAdapter{Base: base}
	base.drv = a
	return a, nil
}

func (a *gcpAdapter) projectID() string {
	return a.cfg.Meta(adapter.MetadataProjectID, "")
}

func (a *gcpAdapter) checkConfig() error {
	if a.cfg.Credentials.AuthType != adapter.AuthIAMRole {
		return errors.ConfigurationError(a.cfg.ID, "credentials.auth_type", "gcp adapters use iam_role")
	}
	if a.projectID() == "" {
		return errors.ConfigurationError(a.cfg.ID, "metadata."+adapter.MetadataProjectID, "required for gcp")
	}
	return nil
}

func (a *gcpAdapter) clients(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gcs != nil {
		return nil
	}

	var opts []option.ClientOption
	if js := a.cfg.Credentials.ServiceAccountJSON; js != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(js)))
	}

	st, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("gcp storage client: %w", err)
	}
	inst, err := compute.NewInstancesRESTClient(ctx, opts...)
	if err != nil {
		st.Close()
		return fmt.Errorf("gcp compute client: %w", err)
	}
	c := &gcpClients{storage: st, compute: inst}
	a.gcs, a.gce = c, c
	return nil
}

func (a *gcpAdapter) probe(ctx context.Context) (map[string]interface{}, error) {
	if err := a.clients(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := a.callTimeout(ctx)
	defer cancel()
	buckets, err := a.gcs.buckets(callCtx, a.projectID())
	if err != nil {
		return nil, fmt.Errorf("gcp bucket listing: %w", err)
	}
	return map[string]interface{}{
		"project_id": a.projectID(),
		"buckets":    len(buckets),
	}, nil
}

func (a *gcpAdapter) collect(ctx context.Context, opts adapter.CollectionOptions) batch {
	var out batch
	if err := a.clients(ctx); err != nil {
		out.fatal = fetchFailure(err)
		return out
	}

	callCtx, cancel := a.callTimeout(ctx)
	buckets, err := a.gcs.buckets(callCtx, a.projectID())
	cancel()
	if err != nil {
		out.fatal = fetchFailure(fmt.Errorf("list gcs buckets: %w", err))
		return out
	}
	for _, b := range buckets {
		out.processed++
		rec := bucketRecord(b)
		severity := ""
		if prevented, _ := flag(rec, "public_access_blocked"); !prevented {
			severity = "high"
		} else if uniform, _ := flag(rec, "uniform_access"); !uniform {
			severity = "low"
		}
		out.evidence = append(out.evidence, cloudEvidence(evidenceStorageConfig, "gcp:gcs:"+b.Name, "GCS bucket "+b.Name, severity, rec))
	}

	callCtx, cancel = a.callTimeout(ctx)
	instances, err := a.gce.instances(callCtx, a.projectID())
	cancel()
	if err != nil {
		out.fatal = fetchFailure(fmt.Errorf("list gce instances: %w", err))
		return out
	}
	for _, inst := range instances {
		out.processed++
		rec := instanceRecord(inst)
		severity := ""
		if boot, _ := flag(rec, "secure_boot"); !boot {
			severity = "medium"
		}
		id := strconv.FormatUint(inst.GetId(), 10)
		out.evidence = append(out.evidence, cloudEvidence(evidenceComputeConfig, "gcp:gce:"+id, "GCE instance "+inst.GetName(), severity, rec))
	}
	return out
}

func bucketRecord(b *storage.BucketAttrs) adapter.Record {
	rec := adapter.Record{
		"bucket":                   b.Name,
		"location":                 b.Location,
		"uniform_access":           b.UniformBucketLevelAccess.Enabled,
		"public_access_blocked":    b.PublicAccessPrevention == storage.PublicAccessPreventionEnforced,
		"versioning":               b.VersioningEnabled,
		"encrypted":                true,
		"customer_managed_key":     false,
		"public_access_prevention": b.PublicAccessPrevention.String(),
	}
	if b.Encryption != nil && b.Encryption.DefaultKMSKeyName != "" {
		rec["customer_managed_key"] = true
		rec["kms_key"] = b.Encryption.DefaultKMSKeyName
	}
	return rec
}

func instanceRecord(inst *computepb.Instance) adapter.Record {
	publicIP := false
	for _, ni := range inst.GetNetworkInterfaces() {
		if len(ni.GetAccessConfigs()) > 0 {
			publicIP = true
		}
	}
	return adapter.Record{
		"instance":            inst.GetName(),
		"zone":                inst.GetZone(),
		"status":              inst.GetStatus(),
		"secure_boot":         inst.GetShieldedInstanceConfig().GetEnableSecureBoot(),
		"deletion_protection": inst.GetDeletionProtection(),
		"public_ip":           publicIP,
	}
}

// MapToControls maps posture records to control identifiers
func (a *gcpAdapter) MapToControls(records []adapter.Record) []string {
	return mapRecords(records, cloudTopics)
}
