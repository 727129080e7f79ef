package global

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/viper"
)

// S3Config describes the S3-compatible object storage holding artifacts and
// pending-operation markers. Defaults target Yandex Object Storage.
type S3Config struct {
	Endpoint        string `json:"endpoint"          validate:"required,url" mapstructure:"endpoint"`
	Region          string `json:"region"            validate:"required"     mapstructure:"region"`
	Bucket          string `json:"bucket"            validate:"required"     mapstructure:"bucket"`
	AccessKeyID     string `json:"access_key_id"     validate:"required"     mapstructure:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" validate:"required"     mapstructure:"secret_access_key"`
}

func LoadS3Config() *S3Config {
	viper.SetDefault("S3_ENDPOINT", "https://storage.yandexcloud.net")
	viper.SetDefault("S3_REGION", "ru-central1")

	return &S3Config{
		Endpoint:        viper.GetString("S3_ENDPOINT"),
		Region:          viper.GetString("S3_REGION"),
		Bucket:          viper.GetString("S3_BUCKET_NAME"),
		AccessKeyID:     viper.GetString("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: viper.GetString("AWS_SECRET_ACCESS_KEY"),
	}
}

func (c *S3Config) Validate() error {
	if err := Validator.Struct(c); err != nil {
		return fmt.Errorf("invalid S3 configuration: %w", err)
	}
	return nil
}

// Client builds an S3 client pointed at the configured endpoint.
func (c *S3Config) Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(c.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.Endpoint)
		o.UsePathStyle = true
	})
	return cli, nil
}

// PublicObjectURL returns the anonymous-read URL of an object in the bucket.
// The recognition service fetches its input through this URL.
func (c *S3Config) PublicObjectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", c.Endpoint, c.Bucket, url.PathEscape(key))
}
