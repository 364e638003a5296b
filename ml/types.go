// types.go - Datentypen und Geraete fuer Tensor-Operationen
// Dieses Modul definiert DType und Device.
package ml

import "log/slog"

// DType represents the data type of tensor elements.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
	DTypeI32
	DTypeBool
)

func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "f32"
	case DTypeF16:
		return "f16"
	case DTypeBF16:
		return "bf16"
	case DTypeI32:
		return "i32"
	case DTypeBool:
		return "bool"
	default:
		return "other"
	}
}

// IsFloat reports whether d holds floating point values.
func (d DType) IsFloat() bool {
	return d == DTypeF32 || d == DTypeF16 || d == DTypeBF16
}

// IsReduced reports whether d is a 16-bit floating point type.
func (d DType) IsReduced() bool {
	return d == DTypeF16 || d == DTypeBF16
}

// ParseDType ist das Gegenstueck zu String
func ParseDType(s string) DType {
	switch s {
	case "f32", "float32":
		return DTypeF32
	case "f16", "float16":
		return DTypeF16
	case "bf16", "bfloat16":
		return DTypeBF16
	case "i32", "int32":
		return DTypeI32
	case "bool":
		return DTypeBool
	default:
		return DTypeOther
	}
}

// Device identifies where a tensor's storage lives.
type Device string

const (
	DeviceCPU   Device = "cpu"
	DeviceCUDA  Device = "cuda"
	DeviceMetal Device = "metal"
)

// IsAccelerator reports whether d is anything other than host memory.
func (d Device) IsAccelerator() bool {
	return d != DeviceCPU && d != ""
}

func (d Device) LogValue() slog.Value {
	return slog.StringValue(string(d))
}
