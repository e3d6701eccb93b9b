package adapters

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/pratik-mahalle/complyflow/internal/domain/adapter"
	"github.com/pratik-mahalle/complyflow/internal/pkg/errors"
)

type s3API interface {
	ListBuckets(ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	GetBucketEncryption(ctx context.Context, in *s3.GetBucketEncryptionInput, optFns ...func(*s3.Options)) (*s3.GetBucketEncryptionOutput, error)
	GetPublicAccessBlock(ctx context.Context, in *s3.GetPublicAccessBlockInput, optFns ...func(*s3.Options)) (*s3.GetPublicAccessBlockOutput, error)
}

type stsAPI interface {
	GetCallerIdentity(ctx context.Context, in *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// awsAdapter reads S3 and security group posture
type awsAdapter struct {
	*Base

	mu  sync.Mutex
	s3  s3API
	ec2 ec2.DescribeSecurityGroupsAPIClient
	sts stsAPI
}

func newAWSAdapter(cfg adapter.Config, deps Deps) (adapter.Adapter, error) {
	base, err := newBase(cfg, deps)
	if err != nil {
		return nil, err
	}
	a := &awsAdapter{Base: base}
	base.drv = a
	return a, nil
}

func (a *awsAdapter) checkConfig() error {
	if a.cfg.Credentials.AuthType != adapter.AuthIAMRole {
		return errors.ConfigurationError(a.cfg.ID, "credentials.auth_type", "aws adapters use iam_role")
	}
	c := a.cfg.Credentials
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.ConfigurationError(a.cfg.ID, "credentials.secret_access_key", "access key id and secret must be set together")
	}
	return nil
}

func (a *awsAdapter) clients(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.s3 != nil {
		return nil
	}

	creds := a.cfg.Credentials
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(a.cfg.Meta(adapter.MetadataRegion, "us-east-1")),
		awsconfig.WithRetryMaxAttempts(a.deps.Policy.MaxRetries + 1),
	}
	if creds.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	if creds.RoleARN != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(cfg), creds.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "complyflow-" + a.cfg.ID
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	a.s3 = s3.NewFromConfig(cfg)
	a.ec2 = ec2.NewFromConfig(cfg)
	a.sts = sts.NewFromConfig(cfg)
	return nil
}

func (a *awsAdapter) probe(ctx context.Context) (map[string]interface{}, error) {
	if err := a.clients(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := a.callTimeout(ctx)
	defer cancel()
	out, err := a.sts.GetCallerIdentity(callCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("aws identity check: %w", err)
	}
	return map[string]interface{}{
		"account": derefString(out.Account),
		"arn":     derefString(out.Arn),
	}, nil
}

func (a *awsAdapter) collect(ctx context.Context, opts adapter.CollectionOptions) batch {
	var out batch
	if err := a.clients(ctx); err != nil {
		out.fatal = fetchFailure(err)
		return out
	}

	callCtx, cancel := a.callTimeout(ctx)
	buckets, err := a.s3.ListBuckets(callCtx, &s3.ListBucketsInput{})
	cancel()
	if err != nil {
		out.fatal = fetchFailure(fmt.Errorf("list s3 buckets: %w", err))
		return out
	}

	for _, b := range buckets.Buckets {
		name := derefString(b.Name)
		if name == "" {
			continue
		}
		out.processed++
		rec, err := a.bucketPosture(ctx, name)
		if err != nil {
			out.recordError(adapter.ErrCodeRecordInvalid, err.Error(), map[string]interface{}{"bucket": name})
			continue
		}
		severity := ""
		if blocked, _ := flag(rec, "public_access_blocked"); !blocked {
			severity = "high"
		} else if enc, _ := flag(rec, "encrypted"); !enc {
			severity = "medium"
		}
		out.evidence = append(out.evidence, cloudEvidence(evidenceStorageConfig, "aws:s3:"+name, "S3 bucket "+name, severity, rec))
	}

	pager := ec2.NewDescribeSecurityGroupsPaginator(a.ec2, &ec2.DescribeSecurityGroupsInput{})
	for pager.HasMorePages() {
		callCtx, cancel := a.callTimeout(ctx)
		page, err := pager.NextPage(callCtx)
		cancel()
		if err != nil {
			out.fatal = fetchFailure(fmt.Errorf("describe security groups: %w", err))
			return out
		}
		for _, sg := range page.SecurityGroups {
			out.processed++
			id := derefString(sg.GroupId)
			open, critical := openIngress(sg.IpPermissions)
			rec := adapter.Record{
				"group_id":     id,
				"group_name":   derefString(sg.GroupName),
				"vpc_id":       derefString(sg.VpcId),
				"open_ingress": open,
			}
			severity := ""
			switch {
			case critical:
				severity = "critical"
			case len(open) > 0:
				severity = "medium"
			}
			out.evidence = append(out.evidence, cloudEvidence(evidenceNetworkConfig, "aws:sg:"+id, "Security group "+derefString(sg.GroupName), severity, rec))
		}
	}
	return out
}

func (a *awsAdapter) bucketPosture(ctx context.Context, name string) (adapter.Record, error) {
	rec := adapter.Record{"bucket": name}

	callCtx, cancel := a.callTimeout(ctx)
	enc, err := a.s3.GetBucketEncryption(callCtx, &s3.GetBucketEncryptionInput{Bucket: aws.String(name)})
	cancel()
	switch {
	case err == nil:
		algo := ""
		if enc.ServerSideEncryptionConfiguration != nil {
			for _, rule := range enc.ServerSideEncryptionConfiguration.Rules {
				if rule.ApplyServerSideEncryptionByDefault != nil {
					algo = string(rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm)
					break
				}
			}
		}
		rec["encrypted"] = algo != ""
		rec["encryption_algorithm"] = algo
	case apiErrorCode(err) == "ServerSideEncryptionConfigurationNotFoundError":
		rec["encrypted"] = false
	default:
		return nil, fmt.Errorf("bucket %s encryption: %w", name, err)
	}

	callCtx, cancel = a.callTimeout(ctx)
	pab, err := a.s3.GetPublicAccessBlock(callCtx, &s3.GetPublicAccessBlockInput{Bucket: aws.String(name)})
	cancel()
	switch {
	case err == nil:
		c := pab.PublicAccessBlockConfiguration
		rec["public_access_blocked"] = c != nil &&
			derefBool(c.BlockPublicAcls) && derefBool(c.BlockPublicPolicy) &&
			derefBool(c.IgnorePublicAcls) && derefBool(c.RestrictPublicBuckets)
	case apiErrorCode(err) == "NoSuchPublicAccessBlockConfiguration":
		rec["public_access_blocked"] = false
	default:
		return nil, fmt.Errorf("bucket %s public access block: %w", name, err)
	}
	return rec, nil
}

// openIngress lists world-open rules; critical marks SSH, RDP or all traffic
func openIngress(perms []ec2types.IpPermission) ([]string, bool) {
	open := []string{}
	critical := false
	for _, p := range perms {
		world := false
		for _, r := range p.IpRanges {
			if derefString(r.CidrIp) == "0.0.0.0/0" {
				world = true
			}
		}
		for _, r := range p.Ipv6Ranges {
			if derefString(r.CidrIpv6) == "::/0" {
				world = true
			}
		}
		if !world {
			continue
		}
		proto := derefString(p.IpProtocol)
		if proto == "-1" {
			open = append(open, "all")
			critical = true
			continue
		}
		from, to := int32(0), int32(0)
		if p.FromPort != nil {
			from = *p.FromPort
		}
		if p.ToPort != nil {
			to = *p.ToPort
		}
		open = append(open, fmt.Sprintf("%s/%d-%d", proto, from, to))
		for _, port := range []int32{22, 3389} {
			if from <= port && port <= to {
				critical = true
			}
		}
	}
	return open, critical
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// MapToControls maps posture records to control identifiers
func (a *awsAdapter) MapToControls(records []adapter.Record) []string {
	return mapRecords(records, cloudTopics)
}
