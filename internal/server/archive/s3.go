// Package archive keeps superseded replica ciphertext in S3-compatible
// object storage (MinIO in development) so older versions can be fetched
// through presigned URLs after a replacement.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/gophsync/internal/server/config"
	"github.com/dmitrijs2005/gophsync/internal/server/models"
)

// PresignExpiry is the lifetime of URLs returned by PresignedGetURL.
const PresignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3Archive stores one object per superseded replica version.
type S3Archive struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New builds an archive from the S3 settings in cfg. Static credentials
// and a custom base endpoint make it work against MinIO as well as AWS.
func New(ctx context.Context, cfg *sc.Config) (*S3Archive, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Archive{client: client, presign: newS3PresignClient(client), bucket: cfg.S3Bucket}, nil
}

// Key is the object key of one archived version.
func Key(userID, filename string, version int64) string {
	return fmt.Sprintf("users/%s/%s/v%d", userID, url.PathEscape(filename), version)
}

// Archive uploads the replica's ciphertext and returns its key. The content
// stays encrypted; the plaintext hash travels as object metadata.
func (a *S3Archive) Archive(ctx context.Context, r *models.Replica) (string, error) {
	key := Key(r.UserID, r.Filename, r.Version)

	_, err := putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(r.Content),
		ContentLength: aws.Int64(int64(len(r.Content))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-hash":  r.ContentHash,
			"last-modified": r.LastModified.UTC().Format(time.RFC3339Nano),
			"device-id":     r.DeviceID,
			"size":          strconv.FormatInt(r.Size, 10),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	return key, nil
}

// PresignedGetURL returns a short-lived download URL for an archived version.
func (a *S3Archive) PresignedGetURL(ctx context.Context, userID, filename string, version int64) (string, error) {
	key := Key(userID, filename, version)

	req, err := presignGetObject(a.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
