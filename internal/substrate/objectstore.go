package substrate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/edvin/dbaas/internal/fault"
)

// ObjectStore wraps the S3-compatible store that holds backup artifacts.
type ObjectStore struct {
	endpoint  string
	accessKey string
	secretKey string
	region    string
}

func NewObjectStore(endpoint, accessKey, secretKey, region string) *ObjectStore {
	if region == "" {
		region = "us-east-1"
	}
	return &ObjectStore{endpoint: endpoint, accessKey: accessKey, secretKey: secretKey, region: region}
}

// Client returns an S3 client configured for the store's endpoint.
func (o *ObjectStore) Client() *s3.Client {
	return s3.New(s3.Options{
		BaseEndpoint: aws.String(o.endpoint),
		Region:       o.region,
		Credentials:  credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, ""),
		UsePathStyle: true,
	})
}

// VerifyAccount probes the store with the configured credentials before any
// backup starts, so a bad credential fails the request instead of the guest.
func (o *ObjectStore) VerifyAccount(ctx context.Context) error {
	_, err := o.Client().ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return fault.New(fault.ObjectStoreAuth, "object store credentials rejected: %v", err)
	}
	return nil
}

// HeadObject returns the stored size of one backup artifact.
func (o *ObjectStore) HeadObject(ctx context.Context, bucket, key string) (int64, error) {
	out, err := o.Client().HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("head object %s/%s: %w", bucket, key, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}
