// Package hardware defines the device and accelerator-spec types shared by
// the resolver, the pass registry, and the executor.
package hardware

import "fmt"

// Device identifies the class of compute device a pass or evaluation runs
// against. The zero value is not a valid device.
type Device string

const (
	CPU Device = "CPU"
	GPU Device = "GPU"
	// NPU covers accelerators that are neither a general CPU nor a GPU,
	// e.g. AWS Inferentia/Trainium (Neuron) devices.
	NPU Device = "NPU"
)

// ParseDevice normalizes a user-supplied device string (case-insensitive)
// to its canonical upper-case form.
func ParseDevice(s string) (Device, error) {
	switch Device(upper(s)) {
	case CPU:
		return CPU, nil
	case GPU:
		return GPU, nil
	case NPU:
		return NPU, nil
	}
	return "", fmt.Errorf("hardware: unrecognized device %q", s)
}

func upper(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// AcceleratorSpec pairs a device with a concrete execution provider. It is
// comparable (usable as a map key) and its String form appears verbatim in
// ModelIds, cache filenames, and output-file prefixes, so it must never
// change shape once set.
type AcceleratorSpec struct {
	Device            Device
	ExecutionProvider string
}

// String renders the canonical "<Device>-<ExecutionProvider>" form used in
// filenames and ModelIds.
func (a AcceleratorSpec) String() string {
	return fmt.Sprintf("%s-%s", string(a.Device), a.ExecutionProvider)
}

// New constructs a spec from device and executionProvider as given; the
// device is not case-normalized here (ParseDevice does that).
func New(device Device, executionProvider string) AcceleratorSpec {
	return AcceleratorSpec{Device: device, ExecutionProvider: executionProvider}
}
