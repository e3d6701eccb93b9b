package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	armcompute "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/compute/armcompute/v5"
	armresources "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	armstorage "github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/storage/armstorage"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

// azureInventory is what the adapter reads from a subscription
type azureInventory interface {
	resourceGroups(ctx context.Context) (int, error)
	storageAccounts(ctx context.Context) ([]*armstorage.Account, error)
	virtualMachines(ctx context.Context) ([]*armcompute.VirtualMachine, error)
}

type azureClients struct {
	groups   *armresources.ResourceGroupsClient
	accounts *armstorage.AccountsClient
	vms      *armcompute.VirtualMachinesClient
}

func (c *azureClients) resourceGroups(ctx context.Context) (int, error) {
	pager := c.groups.NewListPager(nil)
	n := 0
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return n, err
		}
		n += len(page.Value)
	}
	return n, nil
}

func (c *azureClients) storageAccounts(ctx context.Context) ([]*armstorage.Account, error) {
	var out []*armstorage.Account
	pager := c.accounts.NewListPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, page.Value...)
	}
	return out, nil
}

func (c *azureClients) virtualMachines(ctx context.Context) ([]*armcompute.VirtualMachine, error) {
	var out []*armcompute.VirtualMachine
	pager := c.vms.NewListAllPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, page.Value...)
	}
	return out, nil
}

// azureAdapter reads storage account and VM posture of one subscription
type azureAdapter struct {
	*Base

	mu  sync.Mutex
	inv azureInventory
}

func newAzureAdapter(cfg adapter.Config, deps Deps) (adapter.Adapter, error) {
	base, err := newBase(cfg, deps)
	if err != nil {
		return nil, err
	}
	a := &azureAdapter{Base: base}
	base.drv = a
	return a, nil
}

func (a *azureAdapter) subscriptionID() string {
	return a.cfg.Meta(adapter.MetadataSubscriptionID, "")
}

func (a *azureAdapter) checkConfig() error {
	switch a.cfg.Credentials.AuthType {
	case adapter.AuthOAuth2:
		if a.cfg.Meta(adapter.MetadataAzureTenantID, "") == "" {
			return errors.ConfigurationError(a.cfg.ID, "metadata."+adapter.MetadataAzureTenantID, "required for client secret auth")
		}
	case adapter.AuthIAMRole:
	default:
		return errors.ConfigurationError(a.cfg.ID, "credentials.auth_type", "azure adapters use oauth2 or iam_role")
	}
	if a.subscriptionID() == "" {
		return errors.ConfigurationError(a.cfg.ID, "metadata."+adapter.MetadataSubscriptionID, "required for azure")
	}
	return nil
}

func (a *azureAdapter) credential() (azcore.TokenCredential, error) {
	c := a.cfg.Credentials
	if c.AuthType == adapter.AuthOAuth2 {
		return azidentity.NewClientSecretCredential(a.cfg.Meta(adapter.MetadataAzureTenantID, ""), c.ClientID, c.ClientSecret, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

func (a *azureAdapter) clients() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inv != nil {
		return nil
	}

	cred, err := a.credential()
	if err != nil {
		return fmt.Errorf("azure credential: %w", err)
	}
	sub := a.subscriptionID()
	groups, err := armresources.NewResourceGroupsClient(sub, cred, nil)
	if err != nil {
		return err
	}
	accounts, err := armstorage.NewAccountsClient(sub, cred, nil)
	if err != nil {
		return err
	}
	vms, err := armcompute.NewVirtualMachinesClient(sub, cred, nil)
	if err != nil {
		return err
	}
	a.inv = &azureClients{groups: groups, accounts: accounts, vms: vms}
	return nil
}

func (a *azureAdapter) probe(ctx context.Context) (map[string]interface{}, error) {
	if err := a.clients(); err != nil {
		return nil, err
	}
	callCtx, cancel := a.callTimeout(ctx)
	defer cancel()
	n, err := a.inv.resourceGroups(callCtx)
	if err != nil {
		return nil, fmt.Errorf("azure resource group listing: %w", err)
	}
	return map[string]interface{}{
		"subscription_id": a.subscriptionID(),
		"resource_groups": n,
	}, nil
}

func (a *azureAdapter) collect(ctx context.Context, opts adapter.CollectionOptions) batch {
	var out batch
	if err := a.clients(); err != nil {
		out.fatal = fetchFailure(err)
		return out
	}

	callCtx, cancel := a.callTimeout(ctx)
	accounts, err := a.inv.storageAccounts(callCtx)
	cancel()
	if err != nil {
		out.fatal = fetchFailure(fmt.Errorf("list storage accounts: %w", err))
		return out
	}
	for _, acc := range accounts {
		if acc == nil {
			continue
		}
		out.processed++
		rec := storageAccountRecord(acc)
		severity := ""
		if public, _ := flag(rec, "blob_public_access"); public {
			severity = "high"
		} else if https, _ := flag(rec, "https_only"); !https {
			severity = "medium"
		}
		name := derefString(acc.Name)
		out.evidence = append(out.evidence, cloudEvidence(evidenceStorageConfig, "azure:storage:"+derefString(acc.ID), "Storage account "+name, severity, rec))
	}

	callCtx, cancel = a.callTimeout(ctx)
	vms, err := a.inv.virtualMachines(callCtx)
	cancel()
	if err != nil {
		out.fatal = fetchFailure(fmt.Errorf("list virtual machines: %w", err))
		return out
	}
	for _, vm := range vms {
		if vm == nil {
			continue
		}
		out.processed++
		rec := vmRecord(vm)
		severity := ""
		if enc, _ := flag(rec, "encryption_at_host"); !enc {
			severity = "low"
		}
		out.evidence = append(out.evidence, cloudEvidence(evidenceComputeConfig, "azure:vm:"+derefString(vm.ID), "Virtual machine "+derefString(vm.Name), severity, rec))
	}
	return out
}

func storageAccountRecord(acc *armstorage.Account) adapter.Record {
	rec := adapter.Record{
		"account":  derefString(acc.Name),
		"location": derefString(acc.Location),
	}
	if p := acc.Properties; p != nil {
		rec["https_only"] = derefBool(p.EnableHTTPSTrafficOnly)
		rec["blob_public_access"] = derefBool(p.AllowBlobPublicAccess)
		rec["public_access_blocked"] = !derefBool(p.AllowBlobPublicAccess)
		if p.MinimumTLSVersion != nil {
			rec["min_tls_version"] = string(*p.MinimumTLSVersion)
		}
		// storage service encryption is always on
		rec["encrypted"] = true
	}
	return rec
}

func vmRecord(vm *armcompute.VirtualMachine) adapter.Record {
	rec := adapter.Record{
		"vm":       derefString(vm.Name),
		"location": derefString(vm.Location),
	}
	enc := false
	if p := vm.Properties; p != nil && p.SecurityProfile != nil {
		enc = derefBool(p.SecurityProfile.EncryptionAtHost)
		if p.SecurityProfile.UefiSettings != nil {
			rec["secure_boot"] = derefBool(p.SecurityProfile.UefiSettings.SecureBootEnabled)
		}
	}
	rec["encryption_at_host"] = enc
	return rec
}

// MapToControls maps posture records to control identifiers
func (a *azureAdapter) MapToControls(records []adapter.Record) []string {
	return mapRecords(records, cloudTopics)
}
