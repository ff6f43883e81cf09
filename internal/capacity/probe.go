package capacity

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"

	"blastsum/internal/metrics"
)

// ErrInsufficientCapacity is returned when the staging volume is fuller than allowed
var ErrInsufficientCapacity = errors.New("insufficient capacity")

// Probe reports disk usage for a path
type Probe interface {
	GetUsage(path string) (UsageInfo, error)
}

// UsageInfo holds information about disk usage
type UsageInfo struct {
	Path        string    `json:"path" yaml:"path"`
	Total       uint64    `json:"total" yaml:"total"`               // Total bytes
	Used        uint64    `json:"used" yaml:"used"`                 // Used bytes
	Free        uint64    `json:"free" yaml:"free"`                 // Free bytes
	UsedPercent float64   `json:"used_percent" yaml:"used_percent"` // Percentage used (0-100)
	Status      string    `json:"status" yaml:"status"`             // "ok" or "alert"
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
}

// DiskProbe implements Probe with gopsutil
type DiskProbe struct {
	metrics *metrics.Metrics
}

// NewDiskProbe creates a new capacity probe. metrics may be nil.
func NewDiskProbe(m *metrics.Metrics) *DiskProbe {
	return &DiskProbe{metrics: m}
}

// GetUsage retrieves usage information for the volume holding path
func (p *DiskProbe) GetUsage(path string) (UsageInfo, error) {
	usageStat, err := disk.Usage(path)
	if err != nil {
		return UsageInfo{}, fmt.Errorf("failed to get disk usage for path %s: %w", path, err)
	}

	if p.metrics != nil {
		p.metrics.CapacityUsedPercent.WithLabelValues(path).Set(usageStat.UsedPercent)
	}

	return UsageInfo{
		Path:        path,
		Total:       usageStat.Total,
		Used:        usageStat.Used,
		Free:        usageStat.Free,
		UsedPercent: usageStat.UsedPercent,
		Status:      "ok",
		Timestamp:   time.Now(),
	}, nil
}

// Guard refuses to stage intermediates on a volume above MaxUsedPercent
type Guard struct {
	probe          Probe
	maxUsedPercent float64
}

// NewGuard creates a guard over probe
func NewGuard(probe Probe, maxUsedPercent float64) *Guard {
	return &Guard{probe: probe, maxUsedPercent: maxUsedPercent}
}

// Check probes path and returns ErrInsufficientCapacity when usage is at or
// above the limit. The returned UsageInfo carries the evaluated status.
func (g *Guard) Check(path string) (UsageInfo, error) {
	if path == "" {
		return UsageInfo{}, fmt.Errorf("path cannot be empty")
	}

	usage, err := g.probe.GetUsage(path)
	if err != nil {
		return UsageInfo{}, err
	}

	if usage.UsedPercent >= g.maxUsedPercent {
		usage.Status = "alert"
		return usage, errors.Wrapf(ErrInsufficientCapacity, "%s is %.1f%% used, limit %.1f%%",
			path, usage.UsedPercent, g.maxUsedPercent)
	}

	usage.Status = "ok"
	return usage, nil
}
