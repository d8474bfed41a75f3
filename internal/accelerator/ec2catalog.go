package accelerator

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/olivefarm/enginecore/internal/hardware"
)

// EC2Client is the narrow slice of the EC2 SDK v2 client EC2Catalog needs.
type EC2Client interface {
	DescribeInstanceTypes(ctx context.Context, in *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
}

// EC2Catalog derives an instance family's supported execution providers
// from its EC2 GPU accelerator metadata instead of a hardcoded table,
// giving the resolver a real-world backing store when the target runs on
// EC2. Each device's providers are fetched lazily from the EC2 API on first
// lookup and cached for the process lifetime; the catalog tables that
// cmd/instancesync refreshes are not read here.
type EC2Catalog struct {
	client       EC2Client
	instanceType string

	mu       sync.Mutex
	resolved map[hardware.Device][]string
}

// NewEC2Catalog returns a Source backed by the named EC2 instance type's
// GPU accelerator info.
func NewEC2Catalog(client EC2Client, instanceType string) *EC2Catalog {
	return &EC2Catalog{client: client, instanceType: instanceType, resolved: map[hardware.Device][]string{}}
}

func (c *EC2Catalog) SupportedExecutionProviders(device hardware.Device) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if providers, ok := c.resolved[device]; ok {
		return providers
	}
	providers := c.fetch(device)
	c.resolved[device] = providers
	return providers
}

func (c *EC2Catalog) fetch(device hardware.Device) []string {
	if device == hardware.CPU {
		return []string{"CPUExecutionProvider"}
	}

	out, err := c.client.DescribeInstanceTypes(context.Background(), &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []ec2types.InstanceType{ec2types.InstanceType(c.instanceType)},
	})
	if err != nil || len(out.InstanceTypes) == 0 {
		return nil
	}
	info := out.InstanceTypes[0]
	if info.GpuInfo == nil {
		return nil
	}

	var providers []string
	seen := make(map[string]bool)
	for _, gpu := range info.GpuInfo.Gpus {
		name := strings.ToLower(derefString(gpu.Manufacturer) + " " + derefString(gpu.Name))
		for _, p := range providersForGPUName(name) {
			if !seen[p] {
				seen[p] = true
				providers = append(providers, p)
			}
		}
	}
	return providers
}

func providersForGPUName(name string) []string {
	switch {
	case strings.Contains(name, "inferentia"), strings.Contains(name, "trainium"):
		return []string{"NeuronExecutionProvider"}
	case strings.Contains(name, "nvidia"):
		return []string{"CUDAExecutionProvider", "TensorRTExecutionProvider"}
	default:
		return nil
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
