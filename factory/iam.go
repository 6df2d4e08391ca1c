package factory

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsCreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dsql/auth"
	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/hydra"
	"go.uber.org/zap"
)

type beforeConnectFunc func(ctx context.Context, cc *pgx.ConnConfig) error

// iamBeforeConnect loads AWS credentials and returns a hook that signs a
// fresh DSQL connect token for every new connection.
func iamBeforeConnect(ctx context.Context, config hydra.DatabaseConfig) (beforeConnectFunc, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if config.Region != "" {
		awsCfg.Region = config.Region
	}
	if envKey := os.Getenv("AWS_ACCESS_KEY_ID"); envKey != "" {
		awsCfg.Credentials = awsCreds.NewStaticCredentialsProvider(envKey, os.Getenv("AWS_SECRET_ACCESS_KEY"), os.Getenv("AWS_SESSION_TOKEN"))
	}
	if awsCfg.Region == "" {
		return nil, fmt.Errorf("an AWS region is required for IAM authentication")
	}
	endpoint := fmt.Sprintf("%s:%d", config.Host, config.Port)
	return iamTokenHook(endpoint, awsCfg.Region, awsCfg.Credentials), nil
}

func iamTokenHook(endpoint, region string, creds aws.CredentialsProvider) beforeConnectFunc {
	return func(ctx context.Context, cc *pgx.ConnConfig) error {
		token, err := auth.GenerateDbConnectAuthToken(ctx, endpoint, region, creds)
		if err != nil {
			return fmt.Errorf("generate IAM auth token: %w", err)
		}
		cc.Password = token
		zap.S().Debugw("generated IAM auth token for Postgres connection (dsql)", "endpoint", endpoint)
		return nil
	}
}
