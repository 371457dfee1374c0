package config

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// LoadSQSClient builds an SQS client from the configured region and optional
// shared-config profile.
func LoadSQSClient(ctx context.Context, cfg *Config) (*sqs.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SQSRegion),
	}
	if cfg.SQSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.SQSProfile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	return sqs.NewFromConfig(awsCfg), nil
}
