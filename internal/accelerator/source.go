package accelerator

import "github.com/olivefarm/enginecore/internal/hardware"

// Source answers which execution providers a device supports, the
// abstract lookup the resolver needs (§4.3's "Added — concrete
// AcceleratorSource").
type Source interface {
	SupportedExecutionProviders(device hardware.Device) []string
}

// StaticSource is a small hardcoded table, equivalent to Olive's
// AcceleratorLookup, used as the default and in tests.
type StaticSource struct{}

func (StaticSource) SupportedExecutionProviders(device hardware.Device) []string {
	switch device {
	case hardware.CPU:
		return []string{"CPUExecutionProvider"}
	case hardware.GPU:
		return []string{"CUDAExecutionProvider", "TensorRTExecutionProvider", "CPUExecutionProvider"}
	case hardware.NPU:
		return []string{"NeuronExecutionProvider"}
	default:
		return nil
	}
}
