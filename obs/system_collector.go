package obs

import (
	"expvar"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemCollector periodically publishes CPU, memory, and disk-usage
// samples via expvar while the merge engine runs, grounded on the
// teacher's server/metrics.go SystemCollector.
type SystemCollector struct {
	cpuUsagePercent *expvar.Float
	memUsagePercent *expvar.Float
	diskUsage       *expvar.Float
	diskPath        string
	interval        time.Duration
	stopChan        chan struct{}
	wg              sync.WaitGroup
	logger          *slog.Logger
}

// NewSystemCollector returns a collector that samples every interval
// and reports disk usage for diskPath (typically the engine's data
// directory).
func NewSystemCollector(diskPath string, interval time.Duration, logger *slog.Logger) *SystemCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemCollector{
		cpuUsagePercent: expvar.NewFloat("o3engine_system_cpu_usage_percent"),
		memUsagePercent: expvar.NewFloat("o3engine_system_mem_usage_percent"),
		diskUsage:       expvar.NewFloat("o3engine_system_disk_usage_percent"),
		diskPath:        diskPath,
		interval:        interval,
		stopChan:        make(chan struct{}),
		logger:          logger.With("component", "SystemCollector"),
	}
}

// Start begins the background collection loop.
func (sc *SystemCollector) Start() {
	sc.logger.Info("starting system metrics collector", "interval", sc.interval)
	sc.wg.Add(1)
	go sc.collectLoop()
}

// Stop signals the collection loop to terminate and waits for it to
// finish.
func (sc *SystemCollector) Stop() {
	sc.logger.Info("stopping system metrics collector")
	close(sc.stopChan)
	sc.wg.Wait()
}

func (sc *SystemCollector) collectLoop() {
	defer sc.wg.Done()
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	sampleWindow := sc.interval - time.Second
	if sampleWindow <= 0 {
		sampleWindow = sc.interval / 2
	}

	for {
		select {
		case <-ticker.C:
			if pcts, err := cpu.Percent(sampleWindow, false); err == nil && len(pcts) > 0 {
				sc.cpuUsagePercent.Set(pcts[0])
			}
			if vm, err := mem.VirtualMemory(); err == nil {
				sc.memUsagePercent.Set(vm.UsedPercent)
			}
			if du, err := disk.Usage(sc.diskPath); err == nil {
				sc.diskUsage.Set(du.UsedPercent)
			}
		case <-sc.stopChan:
			return
		}
	}
}
