// Package accelerator resolves a target system's declared devices and
// requested execution providers into the ordered list of AcceleratorSpecs
// the engine will search over (§4.3).
package accelerator

import (
	"fmt"
	"log"

	"github.com/olivefarm/enginecore/internal/hardware"
)

// SystemType mirrors the distilled spec's "remote"/"local-like"/other host
// classification used to pick a default provider set when none was
// declared.
type SystemType int

const (
	// SystemLocal covers hosts that run passes in-process or via a local
	// subprocess; queried directly for their supported providers.
	SystemLocal SystemType = iota
	// SystemRemote is the "remote" system type: with no declared
	// providers this is a fatal configuration error.
	SystemRemote
	// SystemOther covers any other host kind, defaulting to CPU-only.
	SystemOther
)

// TargetHost is the narrow view of the target system the resolver needs.
type TargetHost struct {
	Type               SystemType
	Devices            []hardware.Device
	SupportedProviders func() []string // queried only for SystemLocal with no declared providers
}

// Resolve implements the accelerator resolution algorithm: pair each
// declared execution provider with at most one device, in device-then-
// provider declaration order, applying the CPU-provider-drop and
// unrecognized-provider rules, and returns the non-empty ordered spec
// list (or an error).
func Resolve(host TargetHost, requestedProviders []string, source Source) ([]hardware.AcceleratorSpec, error) {
	providers := requestedProviders
	if len(providers) == 0 {
		switch host.Type {
		case SystemRemote:
			return nil, fmt.Errorf("accelerator: remote target declared no execution providers")
		case SystemLocal:
			if host.SupportedProviders != nil {
				providers = host.SupportedProviders()
			}
		default:
			providers = []string{"CPUExecutionProvider"}
		}
	}

	hasCPUDevice := false
	for _, d := range host.Devices {
		if d == hardware.CPU {
			hasCPUDevice = true
			break
		}
	}

	paired := make(map[string]bool, len(providers)) // provider -> already paired or rejected
	notSupported := make(map[string]bool)
	var specs []hardware.AcceleratorSpec

	for _, device := range host.Devices {
		supported := make(map[string]bool)
		for _, p := range source.SupportedExecutionProviders(device) {
			supported[p] = true
		}
		for _, provider := range providers {
			if paired[provider] {
				continue
			}
			if !supported[provider] {
				notSupported[provider] = true
				paired[provider] = true
				continue
			}
			if provider == "CPUExecutionProvider" && device != hardware.CPU && hasCPUDevice {
				// Dropped, not rejected: leave unpaired so a later CPU
				// device still gets a chance to claim this provider.
				continue
			}
			specs = append(specs, hardware.New(device, provider))
			paired[provider] = true
		}
	}

	for p := range notSupported {
		// Only warn for providers that were never actually paired with a
		// device (a provider rejected via the CPU-drop rule above is not
		// "unsupported", it's deliberately skipped).
		log.Printf("accelerator: execution provider %q is not supported by any declared device", p)
	}

	if len(specs) == 0 {
		return nil, fmt.Errorf("accelerator: resolution produced no accelerator specs")
	}
	return specs, nil
}
