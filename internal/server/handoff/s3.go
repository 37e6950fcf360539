package handoff

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// AWSConfig locates the authority's drop bucket and response queue.
type AWSConfig struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
	Prefix       string
}

func loadAWSConfig(ctx context.Context, c AWSConfig) (aws.Config, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.AccessKey, c.SecretKey, "",
		)))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

type s3PutAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Transport uploads each file into the drop bucket under Prefix+key, with
// the upload fields attached as object metadata.
type S3Transport struct {
	api    s3PutAPI
	bucket string
	prefix string
}

// NewS3Transport builds an S3 client with static credentials and a custom
// endpoint, which also covers S3-compatible stores such as MinIO.
func NewS3Transport(ctx context.Context, c AWSConfig) (*S3Transport, error) {
	cfg, err := loadAWSConfig(ctx, c)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if c.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(c.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Transport{api: client, bucket: c.Bucket, prefix: c.Prefix}, nil
}

func (t *S3Transport) Deliver(ctx context.Context, key, path string, fields map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	_, err = t.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(t.prefix + key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		Metadata:      objectMetadata(fields),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// objectMetadata keeps fields whose names are valid metadata keys.
func objectMetadata(fields map[string]string) map[string]string {
	md := make(map[string]string, len(fields))
	for k, v := range fields {
		name := strings.ToLower(strings.ReplaceAll(k, "_", "-"))
		if name == "" || strings.ContainsAny(name, " :\t\r\n") {
			continue
		}
		md[name] = v
	}
	return md
}
