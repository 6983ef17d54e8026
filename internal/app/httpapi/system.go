package httpapi

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	app "github.com/R3E-Network/factory_os/internal/app"
	"github.com/R3E-Network/factory_os/internal/httputil"
)

const systemInfoTimeout = 2 * time.Second

type systemInfo struct {
	Service         string  `json:"service"`
	Version         string  `json:"version"`
	Location        string  `json:"location"`
	GoVersion       string  `json:"go_version"`
	Goroutines      int     `json:"goroutines"`
	Hostname        string  `json:"hostname,omitempty"`
	OS              string  `json:"os,omitempty"`
	Platform        string  `json:"platform,omitempty"`
	PlatformVersion string  `json:"platform_version,omitempty"`
	UptimeSeconds   uint64  `json:"uptime_seconds,omitempty"`
	CPUCount        int     `json:"cpu_count,omitempty"`
	Load1           float64 `json:"load_1,omitempty"`
	MemoryTotal     uint64  `json:"memory_total_bytes,omitempty"`
	MemoryUsedPct   float64 `json:"memory_used_percent,omitempty"`
}

// systemInfo reports host facts. Probes that fail are left out rather than
// failing the request.
func (h *handler) systemInfo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), systemInfoTimeout)
	defer cancel()
	log := h.app.Logger().WithContext(ctx)

	info := systemInfo{
		Service:    app.ServiceName,
		Version:    app.Version,
		Location:   h.app.Config().FactoryLocation,
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hi.Hostname
		info.OS = hi.OS
		info.Platform = hi.Platform
		info.PlatformVersion = hi.PlatformVersion
		info.UptimeSeconds = hi.Uptime
	} else {
		log.WithError(err).Debug("host info unavailable")
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.CPUCount = n
	} else {
		log.WithError(err).Debug("cpu count unavailable")
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		info.Load1 = avg.Load1
	} else {
		log.WithError(err).Debug("load average unavailable")
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsedPct = vm.UsedPercent
	} else {
		log.WithError(err).Debug("memory info unavailable")
	}

	httputil.WriteJSON(w, http.StatusOK, info)
}
