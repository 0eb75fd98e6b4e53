package keyproxy

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

type KMSAPI interface {
	ListKeys(ctx context.Context, params *kms.ListKeysInput, optFns ...func(*kms.Options)) (*kms.ListKeysOutput, error)
}

// KMSStatus is the connection state shown for an account's KMS.
type KMSStatus string

const (
	KMSConnected    KMSStatus = "connected"
	KMSNotConnected KMSStatus = "not_connected"
)

// KMSProbe checks that a KMS endpoint accepts the configured credentials.
// Successful checks are cached per id for the probe TTL; failures are not.
type KMSProbe struct {
	kms   KMSAPI
	cache *TTLCache[KMSStatus]
}

func NewKMSProbe(k KMSAPI, cacheSize int, ttl time.Duration) *KMSProbe {
	if k == nil {
		panic("kms client is required")
	}
	return &KMSProbe{kms: k, cache: NewTTLCache[KMSStatus](cacheSize, ttl)}
}

// Check lists at most one key. Any answer from KMS counts as connected.
func (p *KMSProbe) Check(ctx context.Context, id string) (KMSStatus, error) {
	if st, ok := p.cache.Get(id); ok {
		return st, nil
	}
	if _, err := p.kms.ListKeys(ctx, &kms.ListKeysInput{Limit: aws.Int32(1)}); err != nil {
		return KMSNotConnected, fmt.Errorf("KMS ListKeys: %w", err)
	}
	p.cache.Set(id, KMSConnected)
	return KMSConnected, nil
}

// ProbeID is the cache id for creds; it never contains the secret key.
func ProbeID(creds AWSCredentials) string {
	return creds.Region + "|" + creds.AccessKeyID
}

// NewAWSKMSClient builds a KMS client from static credentials.
func NewAWSKMSClient(ctx context.Context, creds AWSCredentials) (*kms.Client, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, &ValidationError{Message: "aws access key id and secret access key are required"}
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(creds.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return kms.NewFromConfig(cfg), nil
}
