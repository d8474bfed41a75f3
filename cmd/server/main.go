package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/olivefarm/enginecore/internal/accelerator"
	"github.com/olivefarm/enginecore/internal/api"
	"github.com/olivefarm/enginecore/internal/cache"
	"github.com/olivefarm/enginecore/internal/catalog"
	"github.com/olivefarm/enginecore/internal/ecrimage"
	"github.com/olivefarm/enginecore/internal/engine"
	"github.com/olivefarm/enginecore/internal/hardware"
	"github.com/olivefarm/enginecore/internal/packaging"
	"github.com/olivefarm/enginecore/internal/passregistry"
	"github.com/olivefarm/enginecore/internal/system"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dbURL := os.Getenv("CATALOG_DATABASE_URL")
	if dbURL == "" {
		log.Fatal("CATALOG_DATABASE_URL is required")
	}

	ctx := context.Background()

	repo, err := catalog.NewRepository(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect to catalog database: %v", err)
	}
	defer repo.Close()

	k8sCfg, err := rest.InClusterConfig()
	if err != nil {
		log.Fatalf("load in-cluster config: %v", err)
	}
	k8sClient, err := kubernetes.NewForConfig(k8sCfg)
	if err != nil {
		log.Fatalf("create kubernetes client: %v", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load AWS config: %v", err)
	}

	ecrResolver := ecrimage.New(ecr.NewFromConfig(awsCfg), os.Getenv("ECR_REGISTRY_ID"))
	secrets := system.NewSecretFetcher(secretsmanager.NewFromConfig(awsCfg))

	cacheDir := os.Getenv("CACHE_DIR")
	if cacheDir == "" {
		cacheDir = "/var/lib/enginecore/cache"
	}
	outputDir := os.Getenv("OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "/var/lib/enginecore/output"
	}
	evalImage := os.Getenv("EVAL_IMAGE")

	k8sHost := system.NewK8sHost(k8sClient, ecrResolver, secrets, cacheDir)
	k8sTarget := system.NewK8sTarget(k8sClient, ecrResolver, secrets, cacheDir, evalImage)

	// The materializer shares cacheDir with the engine's own cache but is a
	// distinct *cache.Cache: MaterializeRemote only touches the downloads/
	// subdirectory and needs no model factory, so it doesn't need to be the
	// same instance the engine constructs internally from cfg.CacheDir.
	materializerCache, err := cache.New(cacheDir, nil)
	if err != nil {
		log.Fatalf("construct materializer cache: %v", err)
	}
	materializer := &cache.RemoteMaterializer{Cache: materializerCache, Client: s3.NewFromConfig(awsCfg)}

	providers := splitCSV(os.Getenv("EXECUTION_PROVIDERS"))
	target := accelerator.TargetHost{
		Type:    accelerator.SystemRemote,
		Devices: devicesFromEnv(),
	}

	// Packaging's process-wide default (overridable per-request via
	// POST /api/v1/runs's packaging_config body field).
	defaultPackaging := packaging.New(packaging.Config{
		Enabled:      os.Getenv("PACKAGING_ENABLED") == "true",
		ManifestName: os.Getenv("PACKAGING_MANIFEST_NAME"),
	})

	eng, err := engine.New(engine.Config{
		CacheDir:           cacheDir,
		OutputDir:          outputDir,
		PlotParetoFrontier: os.Getenv("PLOT_PARETO_FRONTIER") == "true",
		Registry:           passregistry.New(),
		Target:             target,
		ExecutionProviders: providers,
		DefaultHost:        k8sHost,
		DefaultTarget:      k8sTarget,
		Materializer:       materializer,
		Packaging:          defaultPackaging,
	})
	if err != nil {
		log.Fatalf("construct engine: %v", err)
	}

	srv := api.NewServer(repo, eng, target, providers, accelerator.StaticSource{})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv.RegisterRoutes(mux)

	log.Printf("enginecore API server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func devicesFromEnv() []hardware.Device {
	raw := splitCSV(os.Getenv("ACCELERATOR_DEVICES"))
	if len(raw) == 0 {
		return []hardware.Device{hardware.GPU}
	}
	devices := make([]hardware.Device, 0, len(raw))
	for _, d := range raw {
		devices = append(devices, hardware.Device(d))
	}
	return devices
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
