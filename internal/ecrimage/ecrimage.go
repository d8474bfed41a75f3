// Package ecrimage resolves an ECR repository/tag reference to its
// immutable image digest, so a Job manifest (and the executor's cache
// key for a containerized pass/evaluation) is reproducible across runs
// even if a mutable tag is later repointed.
package ecrimage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// DescribeImagesAPI is the narrow ECR client slice Resolver needs.
type DescribeImagesAPI interface {
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// Resolver resolves repository/tag pairs to pinned "repo@sha256:..." refs.
type Resolver struct {
	client   DescribeImagesAPI
	registry string // AWS account ID owning the registry, "" for the caller's own account
}

// New returns a Resolver backed by client. registryID may be empty to use
// the calling account's default private registry.
func New(client DescribeImagesAPI, registryID string) *Resolver {
	return &Resolver{client: client, registry: registryID}
}

// Resolve returns a "<repository>@sha256:<digest>" reference for
// repository:tag, or an error if the tag can't be found. The registry host
// is not prepended.
func (r *Resolver) Resolve(ctx context.Context, repository, tag string) (string, error) {
	if repository == "" {
		return "", fmt.Errorf("ecrimage: repository name is required")
	}
	in := &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repository),
		ImageIds: []types.ImageIdentifier{
			{ImageTag: aws.String(tag)},
		},
	}
	if r.registry != "" {
		in.RegistryId = aws.String(r.registry)
	}
	out, err := r.client.DescribeImages(ctx, in)
	if err != nil {
		return "", fmt.Errorf("ecrimage: describe images for %s:%s: %w", repository, tag, err)
	}
	if len(out.ImageDetails) == 0 {
		return "", fmt.Errorf("ecrimage: no image found for %s:%s", repository, tag)
	}
	digest := aws.ToString(out.ImageDetails[0].ImageDigest)
	if digest == "" {
		return "", fmt.Errorf("ecrimage: image %s:%s has no digest", repository, tag)
	}
	return fmt.Sprintf("%s@%s", repository, digest), nil
}
