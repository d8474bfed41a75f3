// Command instancesync refreshes the catalog's EC2 instance-type
// accelerator-capability table and per-region pricing data, adapted from
// the original cmd/pricingrefresh: one goroutine per AWS region (via
// errgroup) instead of a sequential region loop, and an added
// DescribeInstanceTypes pass that populates InstanceAcceleratorCapability
// rows for the API's accelerator catalog and recommend endpoints to read.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"golang.org/x/sync/errgroup"

	"github.com/olivefarm/enginecore/internal/catalog"
)

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("CATALOG_DATABASE_URL")
	if dbURL == "" {
		log.Fatal("CATALOG_DATABASE_URL is required")
	}

	instanceTypes := splitCSV(os.Getenv("INSTANCE_TYPES"))
	if len(instanceTypes) == 0 {
		log.Fatal("INSTANCE_TYPES is required (comma-separated EC2 instance types)")
	}
	regions := splitCSV(getEnv("PRICING_REGIONS", "us-east-2"))

	repo, err := catalog.NewRepository(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect to catalog database: %v", err)
	}
	defer repo.Close()

	ec2Cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}
	ec2Client := ec2.NewFromConfig(ec2Cfg)

	if err := syncCapabilities(ctx, repo, ec2Client, instanceTypes); err != nil {
		log.Fatalf("sync accelerator capabilities: %v", err)
	}

	// AWS Pricing API is only available in us-east-1, regardless of which
	// region's prices are being queried.
	pricingCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion("us-east-1"))
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}
	pricingClient := pricing.NewFromConfig(pricingCfg)

	g, gctx := errgroup.WithContext(ctx)
	for _, region := range regions {
		region := region
		g.Go(func() error {
			return syncRegionPricing(gctx, repo, pricingClient, instanceTypes, region)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("pricing sync: %v", err)
	}

	log.Printf("instancesync complete: %d instance types, regions %s", len(instanceTypes), strings.Join(regions, ", "))
}

// syncCapabilities populates instance_accelerator_capabilities from EC2's
// GPU accelerator metadata (§3.1's InstanceAcceleratorCapability), the
// catalog internal/api serves from /api/v1/accelerators/catalog and
// /api/v1/recommend.
func syncCapabilities(ctx context.Context, repo catalog.Repo, client *ec2.Client, instanceTypes []string) error {
	typed := make([]ec2types.InstanceType, 0, len(instanceTypes))
	for _, it := range instanceTypes {
		typed = append(typed, ec2types.InstanceType(it))
	}
	out, err := client.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{InstanceTypes: typed})
	if err != nil {
		return fmt.Errorf("DescribeInstanceTypes: %w", err)
	}

	var synced int
	for _, info := range out.InstanceTypes {
		cap := capabilityFromInstanceInfo(info)
		if err := repo.UpsertCapability(ctx, cap); err != nil {
			log.Printf("WARN: upsert capability %s: %v", cap.InstanceType, err)
			continue
		}
		synced++
	}
	log.Printf("Synced accelerator capabilities for %d/%d instance types", synced, len(instanceTypes))
	return nil
}

func capabilityFromInstanceInfo(info ec2types.InstanceTypeInfo) *catalog.InstanceAcceleratorCapability {
	c := &catalog.InstanceAcceleratorCapability{
		InstanceType: string(info.InstanceType),
	}
	if info.GpuInfo == nil || len(info.GpuInfo.Gpus) == 0 {
		c.SupportedExecutionProviders = []string{"CPUExecutionProvider"}
		return c
	}
	gpu := info.GpuInfo.Gpus[0]
	name := derefString(gpu.Manufacturer) + " " + derefString(gpu.Name)
	c.AcceleratorName = strings.TrimSpace(name)
	if gpu.Count != nil {
		c.AcceleratorCount = int(*gpu.Count)
	}
	if info.GpuInfo.TotalGpuMemoryInMiB != nil {
		c.AcceleratorMemoryGiB = int(*info.GpuInfo.TotalGpuMemoryInMiB / 1024)
	}
	c.SupportedExecutionProviders = providersForGPUName(strings.ToLower(name))
	return c
}

func providersForGPUName(name string) []string {
	switch {
	case strings.Contains(name, "inferentia"), strings.Contains(name, "trainium"):
		return []string{"NeuronExecutionProvider"}
	case strings.Contains(name, "nvidia"):
		return []string{"CUDAExecutionProvider", "TensorRTExecutionProvider"}
	default:
		return []string{"CPUExecutionProvider"}
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// syncRegionPricing refreshes on-demand/reserved pricing for every
// instance type in one region. Regions run concurrently (one goroutine
// each via the caller's errgroup); instance types within a region run
// sequentially with a throttling sleep, matching the original rate
// limiting against the AWS Pricing API.
func syncRegionPricing(ctx context.Context, repo catalog.Repo, client *pricing.Client, instanceTypes []string, region string) error {
	today := time.Now().Format("2006-01-02")
	var updated int
	for _, it := range instanceTypes {
		onDemand, res1yr, res3yr, err := fetchPricing(ctx, client, it, region)
		if err != nil {
			log.Printf("WARN: %s in %s: %v", it, region, err)
			time.Sleep(200 * time.Millisecond)
			continue
		}

		row := &catalog.PricingRow{
			InstanceType:         it,
			Region:               region,
			OnDemandHourlyUSD:    onDemand,
			Reserved1YrHourlyUSD: res1yr,
			Reserved3YrHourlyUSD: res3yr,
			EffectiveDate:        today,
		}
		if err := repo.UpsertPricing(ctx, row); err != nil {
			log.Printf("WARN: upsert pricing %s in %s: %v", it, region, err)
		} else {
			updated++
		}
		time.Sleep(200 * time.Millisecond)
	}
	log.Printf("Updated pricing for %d/%d instance types in %s", updated, len(instanceTypes), region)
	return nil
}

// fetchPricing calls the AWS Pricing API for a single instance type and
// region, returning on-demand hourly, 1yr RI (All Upfront), and 3yr RI
// (All Upfront) rates.
func fetchPricing(ctx context.Context, client *pricing.Client, instanceType, region string) (onDemand float64, res1yr, res3yr *float64, err error) {
	input := &pricing.GetProductsInput{
		ServiceCode: strPtr("AmazonEC2"),
		Filters: []pricingtypes.Filter{
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("instanceType"), Value: strPtr(instanceType)},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("operatingSystem"), Value: strPtr("Linux")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("tenancy"), Value: strPtr("Shared")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("preInstalledSw"), Value: strPtr("NA")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("capacitystatus"), Value: strPtr("Used")},
			{Type: pricingtypes.FilterTypeTermMatch, Field: strPtr("regionCode"), Value: strPtr(region)},
		},
		MaxResults: int32Ptr(10),
	}

	resp, err := client.GetProducts(ctx, input)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("GetProducts: %w", err)
	}
	if len(resp.PriceList) == 0 {
		return 0, nil, nil, fmt.Errorf("no pricing found for %s in %s", instanceType, region)
	}

	var product priceDoc
	if err := json.Unmarshal([]byte(resp.PriceList[0]), &product); err != nil {
		return 0, nil, nil, fmt.Errorf("parse price list: %w", err)
	}

	onDemand, err = extractOnDemand(product.Terms.OnDemand)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("on-demand: %w", err)
	}

	res1yr = extractReserved(product.Terms.Reserved, "1yr")
	res3yr = extractReserved(product.Terms.Reserved, "3yr")

	return onDemand, res1yr, res3yr, nil
}

// priceDoc represents the relevant structure of an AWS Pricing API response entry.
type priceDoc struct {
	Terms struct {
		OnDemand map[string]termEntry `json:"OnDemand"`
		Reserved map[string]termEntry `json:"Reserved"`
	} `json:"terms"`
}

type termEntry struct {
	PriceDimensions map[string]priceDimension `json:"priceDimensions"`
	TermAttributes  map[string]string         `json:"termAttributes"`
}

type priceDimension struct {
	Unit         string            `json:"unit"`
	PricePerUnit map[string]string `json:"pricePerUnit"`
}

func extractOnDemand(terms map[string]termEntry) (float64, error) {
	for _, term := range terms {
		for _, pd := range term.PriceDimensions {
			if pd.Unit == "Hrs" {
				usd, ok := pd.PricePerUnit["USD"]
				if !ok {
					continue
				}
				return strconv.ParseFloat(usd, 64)
			}
		}
	}
	return 0, fmt.Errorf("no hourly on-demand price found")
}

// extractReserved finds the All Upfront, Standard reserved price for the
// given lease length ("1yr" or "3yr") and returns the effective hourly rate.
func extractReserved(terms map[string]termEntry, lease string) *float64 {
	for _, term := range terms {
		attrs := term.TermAttributes
		if attrs["LeaseContractLength"] != lease ||
			attrs["PurchaseOption"] != "All Upfront" ||
			attrs["OfferingClass"] != "standard" {
			continue
		}

		for _, pd := range term.PriceDimensions {
			if pd.Unit == "Quantity" {
				usd, ok := pd.PricePerUnit["USD"]
				if !ok {
					continue
				}
				upfront, err := strconv.ParseFloat(usd, 64)
				if err != nil || upfront <= 0 {
					continue
				}
				var hours float64
				switch lease {
				case "1yr":
					hours = 8760
				case "3yr":
					hours = 26280
				}
				hourly := upfront / hours
				return &hourly
			}
		}
	}
	return nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func strPtr(s string) *string { return &s }
func int32Ptr(i int32) *int32 { return &i }
