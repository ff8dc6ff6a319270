package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"go.uber.org/zap"

	"github.com/swayfi/dca-engine/internal/logger"
)

// SecretsManagerClient wraps the AWS Secrets Manager client.
type SecretsManagerClient struct {
	svc *secretsmanager.Client
	cfg aws.Config
}

// NewSecretsManagerClient creates a Secrets Manager client using the
// default AWS configuration chain.
func NewSecretsManagerClient(ctx context.Context) (*SecretsManagerClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return &SecretsManagerClient{
		svc: secretsmanager.NewFromConfig(cfg),
		cfg: cfg,
	}, nil
}

// GetSecretString fetches a secret string using an ARN taken from
// secretArnEnvVar. If the ARN is unset or the fetch fails, it falls back to
// reading the secret directly from fallbackEnvVar.
func (c *SecretsManagerClient) GetSecretString(ctx context.Context, secretArnEnvVar string, fallbackEnvVar string) (string, error) {
	secretArn := os.Getenv(secretArnEnvVar)

	if secretArn != "" {
		input := &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretArn),
		}

		result, err := c.svc.GetSecretValue(ctx, input)
		if err == nil && result.SecretString != nil && *result.SecretString != "" {
			return *result.SecretString, nil
		}
		logger.Log.Warn("failed to retrieve secret from Secrets Manager, falling back to env var",
			zap.String("secret_arn_env_var", secretArnEnvVar),
			zap.String("fallback_env_var", fallbackEnvVar),
			zap.Error(err),
		)
	}

	if secretValue := os.Getenv(fallbackEnvVar); secretValue != "" {
		return secretValue, nil
	}

	return "", fmt.Errorf("secret not found using ARN env var '%s' or direct env var '%s'", secretArnEnvVar, fallbackEnvVar)
}

// GetSecretJSON fetches a JSON secret and unmarshals it into target. The
// fallback env var is expected to hold a plain value, not JSON, so a needed
// fallback is reported as a configuration error.
func (c *SecretsManagerClient) GetSecretJSON(ctx context.Context, secretArnEnvVar string, fallbackEnvVar string, target interface{}) error {
	secretArn := os.Getenv(secretArnEnvVar)
	if secretArn != "" {
		input := &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretArn),
		}

		result, err := c.svc.GetSecretValue(ctx, input)
		if err == nil && result.SecretString != nil {
			if err = json.Unmarshal([]byte(*result.SecretString), target); err == nil {
				return nil
			}
			logger.Log.Warn("failed to unmarshal JSON secret from Secrets Manager, falling back",
				zap.String("secret_arn_env_var", secretArnEnvVar),
				zap.Error(err),
			)
		} else {
			logger.Log.Warn("failed to retrieve secret from Secrets Manager, falling back",
				zap.String("secret_arn_env_var", secretArnEnvVar),
				zap.Error(err),
			)
		}
	}

	if os.Getenv(fallbackEnvVar) != "" {
		return fmt.Errorf("secrets Manager fetch failed for %s, and fallback %s is not JSON parsable", secretArnEnvVar, fallbackEnvVar)
	}

	return fmt.Errorf("secret not found or parsable using ARN env var '%s' or direct env var '%s'", secretArnEnvVar, fallbackEnvVar)
}
