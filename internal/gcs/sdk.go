package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"ssmdquery/logger"
)

// SDKTransport lists and fetches objects through the S3-compatible interop
// surface of the object store, using path-style addressing against the
// configured endpoint. Token minting still goes through the gcloud CLI, the
// only holder of the operator's ambient identity.
type SDKTransport struct {
	client *s3.Client
	cli    *CLITransport
	log    *logger.Log
}

// NewSDKTransport builds an S3 client against the storage endpoint. HMAC
// interop keys are picked up from the standard credential chain; explicit
// keys win when provided.
func NewSDKTransport(ctx context.Context, endpoint, accessKey, secretKey string) (*SDKTransport, error) {
	log := logger.GetLogger()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion("auto"),
	}
	if accessKey != "" && secretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String("https://" + strings.TrimPrefix(endpoint, "https://"))
		}
		o.UsePathStyle = true
	})

	log.WithComponent("gcs_transport").WithFields(logger.Fields{
		"endpoint":   endpoint,
		"path_style": true,
	}).Info("sdk transport initialized")

	return &SDKTransport{client: client, cli: NewCLITransport(), log: log}, nil
}

func (t *SDKTransport) List(ctx context.Context, remotePath string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ListTimeout)
	defer cancel()

	bucket, key, err := splitObjectURL(remotePath)
	if err != nil {
		return nil, err
	}

	// Delimited listing mirrors the directory view gsutil ls presents.
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(bucket),
		Prefix:    aws.String(key),
		Delimiter: aws.String("/"),
	}

	var entries []string
	paginator := s3.NewListObjectsV2Paginator(t.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", remotePath, err)
		}
		for _, cp := range page.CommonPrefixes {
			entries = append(entries, fmt.Sprintf("gs://%s/%s", bucket, aws.ToString(cp.Prefix)))
		}
		for _, obj := range page.Contents {
			objKey := aws.ToString(obj.Key)
			if objKey == key {
				continue
			}
			entries = append(entries, fmt.Sprintf("gs://%s/%s", bucket, objKey))
		}
	}
	return entries, nil
}

func (t *SDKTransport) Fetch(ctx context.Context, remotePath, localPath string) error {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	bucket, key, err := splitObjectURL(remotePath)
	if err != nil {
		return err
	}

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get %s: %w", remotePath, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer f.Close()

	n, err := io.Copy(f, out.Body)
	if err != nil {
		os.Remove(localPath)
		return fmt.Errorf("download %s: %w", remotePath, err)
	}

	t.log.WithComponent("gcs_transport").WithFields(logger.Fields{
		"remote": remotePath,
		"local":  localPath,
		"bytes":  n,
	}).Debug("object downloaded")
	return nil
}

func (t *SDKTransport) Token(ctx context.Context) (string, error) {
	return t.cli.Token(ctx)
}
