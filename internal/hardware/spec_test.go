package hardware

import "testing"

func TestParseDeviceCaseInsensitive(t *testing.T) {
	cases := map[string]Device{"cpu": CPU, "GPU": GPU, "Npu": NPU}
	for in, want := range cases {
		got, err := ParseDevice(in)
		if err != nil {
			t.Fatalf("ParseDevice(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDevice(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDeviceRejectsUnknown(t *testing.T) {
	if _, err := ParseDevice("tpu"); err == nil {
		t.Fatalf("ParseDevice: want error for unrecognized device")
	}
}

func TestAcceleratorSpecString(t *testing.T) {
	a := New(CPU, "CPUExecutionProvider")
	if got := a.String(); got != "CPU-CPUExecutionProvider" {
		t.Fatalf("String() = %q, want CPU-CPUExecutionProvider", got)
	}
}
