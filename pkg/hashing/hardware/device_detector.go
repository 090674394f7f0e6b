package hardware

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// memoryBudget is the share of available memory batches may occupy
const memoryBudget = 0.5

// HostInfo describes the machine lanes run on
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform"`
	LogicalCores    int    `json:"logical_cores"`
	PhysicalCores   int    `json:"physical_cores"`
	TotalMemory     uint64 `json:"total_memory"`
	AvailableMemory uint64 `json:"available_memory"`
	GPUName         string `json:"gpu_name,omitempty"`
	ComputeCap      string `json:"compute_capability,omitempty"`
}

// HasGPU reports whether an NVIDIA GPU was found
func (h *HostInfo) HasGPU() bool {
	return h.GPUName != ""
}

// Workers returns the number of lane workers to launch
func (h *HostInfo) Workers() int {
	if h.LogicalCores > 0 {
		return h.LogicalCores
	}
	return runtime.NumCPU()
}

// MaxLanes returns how many lanes of perLaneBytes fit in the memory budget.
// It never returns less than 1.
func (h *HostInfo) MaxLanes(perLaneBytes int64) int {
	if perLaneBytes <= 0 || h.AvailableMemory == 0 {
		return 1
	}
	lanes := int64(float64(h.AvailableMemory)*memoryBudget) / perLaneBytes
	if lanes < 1 {
		return 1
	}
	return int(lanes)
}

// DeviceDetector inspects the host once and caches the result
type DeviceDetector struct {
	mu       sync.Mutex
	info     *HostInfo
	warnings []string
}

// NewDeviceDetector creates a new hardware detector
func NewDeviceDetector() *DeviceDetector {
	return &DeviceDetector{}
}

// Detect returns the host description. Probes that fail are recorded as
// warnings and leave their fields zero.
func (d *DeviceDetector) Detect() *HostInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.info != nil {
		return d.info
	}

	info := &HostInfo{OS: runtime.GOOS}

	if hi, err := host.Info(); err == nil {
		info.Hostname = hi.Hostname
		info.Platform = hi.Platform
	} else {
		d.warnings = append(d.warnings, fmt.Sprintf("host info: %v", err))
	}

	if n, err := cpu.Counts(true); err == nil {
		info.LogicalCores = n
	} else {
		info.LogicalCores = runtime.NumCPU()
		d.warnings = append(d.warnings, fmt.Sprintf("logical cores: %v", err))
	}
	if n, err := cpu.Counts(false); err == nil {
		info.PhysicalCores = n
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total
		info.AvailableMemory = vm.Available
	} else {
		d.warnings = append(d.warnings, fmt.Sprintf("memory: %v", err))
	}

	info.GPUName, info.ComputeCap = detectGPU()

	d.info = info
	return info
}

// Warnings returns the probe failures of the last detection
func (d *DeviceDetector) Warnings() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.warnings...)
}

// detectGPU asks nvidia-smi for the first GPU
func detectGPU() (name, computeCap string) {
	cmd := exec.Command("nvidia-smi", "--query-gpu=name,compute_cap", "--format=csv,noheader,nounits")
	output, err := cmd.Output()
	if err != nil {
		return "", ""
	}
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) == 0 {
		return "", ""
	}
	fields := strings.Split(lines[0], ",")
	if len(fields) < 2 {
		return "", ""
	}
	return strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
}

// Summary returns a human-readable description of the host
func (h *HostInfo) Summary() string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Host:     %s (%s/%s)\n", h.Hostname, h.OS, h.Platform))
	builder.WriteString(fmt.Sprintf("Cores:    %d logical, %d physical\n", h.LogicalCores, h.PhysicalCores))
	builder.WriteString(fmt.Sprintf("Memory:   %d MiB available of %d MiB\n", h.AvailableMemory>>20, h.TotalMemory>>20))
	if h.HasGPU() {
		builder.WriteString(fmt.Sprintf("GPU:      %s (compute %s)\n", h.GPUName, h.ComputeCap))
	} else {
		builder.WriteString("GPU:      none\n")
	}
	return builder.String()
}
