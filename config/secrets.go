package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManagerGetter reads secrets from AWS Secrets Manager.
type SecretsManagerGetter struct {
	Client SecretsManagerAPI
}

// NewSecretsManagerGetter creates a SecretGetter backed by the given AWS configuration.
func NewSecretsManagerGetter(awsConfig aws.Config) *SecretsManagerGetter {
	return &SecretsManagerGetter{Client: secretsmanager.NewFromConfig(awsConfig)}
}

func (g *SecretsManagerGetter) GetSecretString(ctx context.Context, secretID string) (string, error) {
	out, err := g.Client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", err
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret '%s' has no string value", secretID)
	}
	return *out.SecretString, nil
}

// LazySecretsManager creates the Secrets Manager client on first use, so nothing is loaded from AWS
// when api_sm_id is not set.
type LazySecretsManager struct {
	// Region optional, the SDK default chain applies when empty
	Region string
}

func (l LazySecretsManager) GetSecretString(ctx context.Context, secretID string) (string, error) {
	awsConfig, err := LoadAWSConfig(ctx, &Config{AWSRegion: l.Region})
	if err != nil {
		return "", err
	}
	return NewSecretsManagerGetter(awsConfig).GetSecretString(ctx, secretID)
}
