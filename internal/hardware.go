package internal

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type Device string

const (
	DeviceAuto Device = "auto"
	DeviceMPS  Device = "mps"
	DeviceCUDA Device = "cuda"
	DeviceCPU  Device = "cpu"
)

// DeviceEnv forces the embedding device when set.
const DeviceEnv = "GROUNDRAG_DEVICE"

// ParseDevice accepts "", auto, mps, cuda and cpu.
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "", DeviceAuto:
		return DeviceAuto, nil
	case DeviceMPS, DeviceCUDA, DeviceCPU:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q", s)
	}
}

// SelectDevice resolves the device to offload to. An explicit preference
// wins over the environment, which wins over detection.
func SelectDevice(preferred Device) Device {
	if preferred != "" && preferred != DeviceAuto {
		return preferred
	}
	if env, err := ParseDevice(os.Getenv(DeviceEnv)); err == nil && env != DeviceAuto {
		return env
	}
	return DetectHardware()
}

func DetectHardware() Device {
	if isMPS() {
		return DeviceMPS
	}
	if isCUDA() {
		return DeviceCUDA
	}
	return DeviceCPU
}

func isMPS() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

func isCUDA() bool {
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}
