package agent

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/vesaa/iotlinker/internal/models"
)

// Snapshot holds a single collection cycle's data.
type Snapshot struct {
	Hostname       string
	LocalIP        string
	OS             string
	CPUUsage       float64
	MemUsage       float64
	DiskUsage      float64
	Load1          float64
	Load5          float64
	Load15         float64
	TCPConnections int
	UDPConnections int
	RxBytes        int64 // bytes/s since last snapshot
	TxBytes        int64 // bytes/s since last snapshot
	CollectedAt    time.Time
}

// Points converts the snapshot into telemetry readings. Host identity is
// attached to every point as metadata.
func (s *Snapshot) Points() []models.DeviceDataPoint {
	meta := map[string]any{}
	if s.Hostname != "" {
		meta["hostname"] = s.Hostname
	}
	if s.LocalIP != "" {
		meta["ip"] = s.LocalIP
	}
	if s.OS != "" {
		meta["os"] = s.OS
	}

	pt := func(name string, v float64, unit string) models.DeviceDataPoint {
		p := models.DeviceDataPoint{MetricName: name, Value: &v, Metadata: meta}
		if unit != "" {
			p.Unit = &unit
		}
		return p
	}
	return []models.DeviceDataPoint{
		pt("cpu_usage", s.CPUUsage, "%"),
		pt("mem_usage", s.MemUsage, "%"),
		pt("disk_usage", s.DiskUsage, "%"),
		pt("load_1", s.Load1, ""),
		pt("load_5", s.Load5, ""),
		pt("load_15", s.Load15, ""),
		pt("tcp_connections", float64(s.TCPConnections), "count"),
		pt("udp_connections", float64(s.UDPConnections), "count"),
		pt("net_rx_rate", float64(s.RxBytes), "B/s"),
		pt("net_tx_rate", float64(s.TxBytes), "B/s"),
	}
}

// Collector gathers system metrics periodically.
type Collector struct {
	mu          sync.Mutex
	prevRx      uint64
	prevTx      uint64
	prevTime    time.Time
	initialized bool
}

// NewCollector creates a ready-to-use Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Collect gathers the current system snapshot. Individual probes that fail
// leave their fields at zero.
func (c *Collector) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		OS:          detailedOS(ctx),
		LocalIP:     localIP(),
		CollectedAt: time.Now().UTC(),
	}
	if h, err := os.Hostname(); err == nil {
		snap.Hostname = h
	}

	pcts, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	} else if len(pcts) > 0 {
		snap.CPUUsage = pcts[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemUsage = vm.UsedPercent
	}

	snap.DiskUsage = maxDiskUsage(ctx)

	if avg, err := load.AvgWithContext(ctx); err == nil {
		snap.Load1, snap.Load5, snap.Load15 = avg.Load1, avg.Load5, avg.Load15
	}

	snap.TCPConnections, snap.UDPConnections = connectionCounts(ctx)
	snap.RxBytes, snap.TxBytes = c.netBandwidth(ctx)

	return snap, nil
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// detailedOS returns a descriptive OS version string, or runtime.GOOS as fallback.
func detailedOS(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err == nil && info.Platform != "" {
		if info.PlatformVersion != "" {
			return fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion) // e.g., "debian 12.5"
		}
		return info.Platform
	}
	return runtime.GOOS
}

// localIP returns the first non-loopback IPv4 address.
func localIP() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, _ := iface.Addrs()
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				return ip.String()
			}
		}
	}
	return ""
}

// maxDiskUsage returns the used percentage of the fullest partition.
func maxDiskUsage(ctx context.Context) float64 {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return 0
	}
	var max float64
	for _, p := range partitions {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		if usage.UsedPercent > max {
			max = usage.UsedPercent
		}
	}
	return max
}

// connectionCounts returns (tcpCount, udpCount) from the OS connection table.
func connectionCounts(ctx context.Context) (int, int) {
	// "tcp" returns both tcp4 and tcp6; same for udp.
	tcpConns, _ := psnet.ConnectionsWithContext(ctx, "tcp")
	udpConns, _ := psnet.ConnectionsWithContext(ctx, "udp")
	return len(tcpConns), len(udpConns)
}

// netBandwidth computes bytes/s since the last call using IOCounters deltas.
func (c *Collector) netBandwidth(ctx context.Context) (rxBps, txBps int64) {
	stats, err := psnet.IOCountersWithContext(ctx, false) // aggregate all interfaces
	if err != nil || len(stats) == 0 {
		return 0, 0
	}
	now := time.Now()
	curRx := stats[0].BytesRecv
	curTx := stats[0].BytesSent

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		dt := now.Sub(c.prevTime).Seconds()
		rxBps = rate(c.prevRx, curRx, dt)
		txBps = rate(c.prevTx, curTx, dt)
	}

	c.prevRx = curRx
	c.prevTx = curTx
	c.prevTime = now
	c.initialized = true
	return
}

// rate is the per-second growth of a counter; a counter that went backwards
// (interface reset, reboot) yields 0.
func rate(prev, cur uint64, seconds float64) int64 {
	if seconds <= 0 || cur < prev {
		return 0
	}
	return int64(float64(cur-prev) / seconds)
}
