// backend.go - Host-Backend und Registrierung
// Enthält: Backend struct, New, Geraete-Erkennung ueber golang.org/x/sys/cpu

package host

import (
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/nanochat/nanochat/ml"
)

func init() {
	ml.RegisterBackend("host", New)
}

// Backend runs every tensor operation in Go memory. When created for an
// accelerator device it labels its tensors with that device while still
// computing on the host, which lets dispatch decisions be exercised on
// machines without a GPU.
type Backend struct {
	device ml.Device
}

// New erstellt ein Host-Backend fuer das angegebene Geraet
func New(params ml.BackendParams) (ml.Backend, error) {
	device := params.Device
	if device == "" {
		device = ml.DeviceCPU
	}
	return &Backend{device: device}, nil
}

func (b *Backend) NewContext() ml.Context {
	return NewContext(b.device)
}

func (b *Backend) Dense() ml.DenseAttention {
	return Dense{}
}

// Varlen gibt den Referenz-Kernel fuer das gepackte Layout zurueck
func (b *Backend) Varlen() ml.VarlenAttention {
	return Varlen{}
}

func (b *Backend) BackendDevices() []ml.DeviceInfo {
	devices := []ml.DeviceInfo{{
		Device:      ml.DeviceCPU,
		Name:        "CPU",
		Description: runtime.GOARCH,
		Features:    cpuFeatures(),
		ThreadCount: runtime.NumCPU(),
	}}

	if b.device.IsAccelerator() {
		devices = append(devices, ml.DeviceInfo{
			Device:      b.device,
			Name:        string(b.device),
			Description: "host emulated",
		})
	}

	return devices
}

func cpuFeatures() []string {
	var features []string
	add := func(ok bool, name string) {
		if ok {
			features = append(features, name)
		}
	}

	switch runtime.GOARCH {
	case "amd64":
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
		add(cpu.X86.HasAVX512BF16, "avx512bf16")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "neon")
		add(cpu.ARM64.HasFPHP, "fp16")
		add(cpu.ARM64.HasASIMDHP, "asimdhp")
		add(cpu.ARM64.HasSVE, "sve")
	}

	return features
}
