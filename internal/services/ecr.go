package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/imyashkale/mcpbridge/internal/logger"
)

// ecrAPI is the part of the ECR client the resolver needs
type ecrAPI interface {
	DescribeRepositories(ctx context.Context, params *ecr.DescribeRepositoriesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeRepositoriesOutput, error)
	DescribeImages(ctx context.Context, params *ecr.DescribeImagesInput, optFns ...func(*ecr.Options)) (*ecr.DescribeImagesOutput, error)
}

// ECRImageResolver finds a prebuilt image for a server so the cloud bridge can
// skip the install step. Repository name format: mcp-{server_id}
type ECRImageResolver struct {
	client ecrAPI
	tag    string
}

// NewECRImageResolver creates a resolver backed by ECR
func NewECRImageResolver(cfg aws.Config) *ECRImageResolver {
	return newECRImageResolver(ecr.NewFromConfig(cfg))
}

func newECRImageResolver(client ecrAPI) *ECRImageResolver {
	return &ECRImageResolver{client: client, tag: "latest"}
}

// RepositoryName returns the repository a server's images are pushed to
func RepositoryName(serverID string) string {
	return fmt.Sprintf("mcp-%s", serverID)
}

// ResolveImage returns <repository uri>:latest when the repository holds that
// tag. A missing repository or image is not an error; the URI is then empty.
func (r *ECRImageResolver) ResolveImage(ctx context.Context, serverID string) (string, error) {
	repoName := RepositoryName(serverID)

	out, err := r.client.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{repoName},
	})
	if err != nil {
		var notFound *types.RepositoryNotFoundException
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to describe ECR repository: %w", err)
	}
	if len(out.Repositories) == 0 || out.Repositories[0].RepositoryUri == nil {
		return "", nil
	}

	_, err = r.client.DescribeImages(ctx, &ecr.DescribeImagesInput{
		RepositoryName: aws.String(repoName),
		ImageIds:       []types.ImageIdentifier{{ImageTag: aws.String(r.tag)}},
	})
	if err != nil {
		var notFound *types.ImageNotFoundException
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to describe ECR image: %w", err)
	}

	uri := fmt.Sprintf("%s:%s", aws.ToString(out.Repositories[0].RepositoryUri), r.tag)
	logger.WithFields(map[string]interface{}{
		"server_id": serverID,
		"image":     uri,
	}).Debug("Resolved prebuilt server image")
	return uri, nil
}
