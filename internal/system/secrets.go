package system

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsAPI is the narrow Secrets Manager client slice SecretFetcher needs.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretFetcher resolves a registry pull secret / model-access token named
// by a ContainerHostSpec into its plaintext value, mirroring the original
// HF_SECRET_NAME handling in handleCatalogSeed — except the prior version read a
// Kubernetes-native Secret by reference, while this engine's secret lives
// in AWS Secrets Manager and is injected as a plain env value at Job
// creation time.
type SecretFetcher struct {
	client SecretsAPI
}

// NewSecretFetcher returns a SecretFetcher backed by client.
func NewSecretFetcher(client SecretsAPI) *SecretFetcher {
	return &SecretFetcher{client: client}
}

// Fetch returns the plaintext string value of secretName, or "" with no
// error if secretName is empty (the common "no secret configured" case).
func (f *SecretFetcher) Fetch(ctx context.Context, secretName string) (string, error) {
	if secretName == "" {
		return "", nil
	}
	if f.client == nil {
		return "", fmt.Errorf("system: no Secrets Manager client configured for secret %q", secretName)
	}
	out, err := f.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", fmt.Errorf("system: fetch secret %q: %w", secretName, err)
	}
	return aws.ToString(out.SecretString), nil
}
