// Package s3 provides an S3-compatible versioning backend. It works
// against AWS S3 as well as MinIO and other S3-compatible services.
package s3

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/simple-repo/pkg/simplerepo"
	"github.com/tendant/simple-repo/pkg/simplerepo/storagepath"
)

// ServiceName is the registration name of this backend.
const ServiceName = "s3"

// Config options for the S3 backend.
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Backend stores content in an S3 bucket and records SHA-1 checksums
// while uploading.
type Backend struct {
	client   *s3.Client
	bucket   string
	resolver *storagepath.Resolver
	config   Config
}

// New creates an S3 backend. Object keys are derived from the resolver's
// path pattern; the resolver's base path supplies the key prefix.
func New(config Config, resolver *storagepath.Resolver) (*Backend, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket name is required", simplerepo.ErrBadArgument)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: resolver is required", simplerepo.ErrBadArgument)
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:   client,
		bucket:   config.Bucket,
		resolver: resolver,
		config:   config,
	}
	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return backend, nil
}

func (b *Backend) ServiceName() string {
	return ServiceName
}

// createBucketIfNotExists creates the bucket if it doesn't exist.
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	// Handle multiple error shapes for MinIO compatibility.
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}
	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		if strings.Contains(err.Error(), "BucketAlreadyExists") ||
			strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// applySSE adds server-side encryption headers if enabled.
func (b *Backend) applySSE(input *s3.PutObjectInput) {
	if !b.config.EnableSSE {
		return
	}
	switch b.config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if b.config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(b.config.SSEKMSKeyID)
		}
	}
}

// Write uploads the bytes to a timestamped object key derived from the
// resource and relative path, filling the metadata map with the SHA-1
// checksum, size and s3 content URI.
func (b *Backend) Write(ctx context.Context, resourceID, callerID, relativePath string, r io.Reader, meta map[string]string) error {
	key, err := b.resolver.Key(resourceID, relativePath)
	if err != nil {
		return &simplerepo.StorageError{Backend: ServiceName, Path: relativePath, Op: "write", Err: err}
	}

	hash := sha1.New()
	counter := &countingReader{reader: io.TeeReader(r, hash)}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   counter,
	}
	if mediaType := meta[simplerepo.MetaMediaType]; mediaType != "" {
		input.ContentType = aws.String(mediaType)
	}
	b.applySSE(input)

	uploader := manager.NewUploader(b.client)
	if _, err := uploader.Upload(ctx, input); err != nil {
		return &simplerepo.StorageError{Backend: ServiceName, Path: key, Op: "write",
			Err: fmt.Errorf("failed to upload to S3: %w", err)}
	}

	meta[simplerepo.MetaChecksum] = fmt.Sprintf("sha1:%x", hash.Sum(nil))
	meta[simplerepo.MetaSize] = strconv.FormatInt(counter.read, 10)
	meta[simplerepo.MetaContentURI] = fmt.Sprintf("s3://%s/%s", b.bucket, key)
	return nil
}

// isNotFound reports whether err denotes a missing object. MinIO and
// other S3-compatible services may return a bare API error instead of
// the modeled NoSuchKey/NotFound types, so the smithy error code is
// checked as well.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// Read streams a stored object to w. The options map must carry the s3
// content URI recorded at write time.
func (b *Backend) Read(ctx context.Context, resourceID, callerID, relativePath, versionID string, w io.Writer, options map[string]string) error {
	key, err := b.objectKey(options)
	if err != nil {
		return err
	}
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return &simplerepo.StorageError{Backend: ServiceName, Path: key, Op: "read",
				Err: simplerepo.ErrResourceNotFound}
		}
		return &simplerepo.StorageError{Backend: ServiceName, Path: key, Op: "read",
			Err: fmt.Errorf("failed to download from S3: %w", err)}
	}
	defer result.Body.Close()
	if _, err := io.Copy(w, result.Body); err != nil {
		return &simplerepo.StorageError{Backend: ServiceName, Path: key, Op: "read", Err: err}
	}
	return nil
}

// Info describes a stored object without downloading it.
func (b *Backend) Info(ctx context.Context, resourceID, relativePath, versionID string, options map[string]string) (*simplerepo.VersionDescriptor, error) {
	key, err := b.objectKey(options)
	if err != nil {
		return nil, err
	}
	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &simplerepo.StorageError{Backend: ServiceName, Path: key, Op: "info",
				Err: simplerepo.ErrResourceNotFound}
		}
		return nil, &simplerepo.StorageError{Backend: ServiceName, Path: key, Op: "info",
			Err: fmt.Errorf("failed to get object metadata: %w", err)}
	}
	return &simplerepo.VersionDescriptor{
		ResourceID: resourceID,
		VersionID:  versionID,
		Paths:      []string{relativePath},
	}, nil
}

// Remove deletes a stored object. The options map must carry the s3
// content URI recorded at write time.
func (b *Backend) Remove(ctx context.Context, options map[string]string) error {
	key, err := b.objectKey(options)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return &simplerepo.StorageError{Backend: ServiceName, Path: key, Op: "remove",
			Err: fmt.Errorf("failed to delete from S3: %w", err)}
	}
	return nil
}

// objectKey extracts the bucket-relative key from the recorded content
// URI.
func (b *Backend) objectKey(options map[string]string) (string, error) {
	contentURI := options[simplerepo.MetaContentURI]
	if contentURI == "" {
		return "", fmt.Errorf("%w: content uri is required", simplerepo.ErrBadArgument)
	}
	location, err := url.Parse(contentURI)
	if err != nil || location.Scheme != "s3" || location.Host != b.bucket {
		return "", fmt.Errorf("%w: invalid content uri %q", simplerepo.ErrBadArgument, contentURI)
	}
	return strings.TrimPrefix(location.Path, "/"), nil
}

// countingReader tracks how many bytes the uploader consumed.
type countingReader struct {
	reader io.Reader
	read   int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.read += int64(n)
	return n, err
}
