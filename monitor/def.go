package monitor

import (
	iface "FaceSyncServer/interface"
	"FaceSyncServer/logger"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	PID      process.Process
	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})
	GRPCTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "grpc_requests_total",
		Help: "Total number of gRPC requests processed",
	})
	TicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facesync_ticks_total",
		Help: "Simulated detection ticks by active filter",
	}, []string{"filter"})
	BoxesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "facesync_boxes_total",
		Help: "Detection boxes emitted by active filter",
	}, []string{"filter"})
	EmptyTicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "facesync_empty_ticks_total",
		Help: "Ticks that produced no detection box",
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "facesync_sessions_active",
		Help: "Allocated sessions",
	})
)

// Registry 汇总本服务所有指标
var Registry = newRegistry()

func newRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memUsage, cpuUsage, GRPCTotal, TicksTotal, BoxesTotal, EmptyTicksTotal, SessionsActive)
	return registry
}

// Recorder 把模拟器统计写入 prometheus
type Recorder struct{}

func (Recorder) ObserveTick(filter iface.Filter, boxes int) {
	TicksTotal.WithLabelValues(string(filter)).Inc()
	if boxes == 0 {
		EmptyTicksTotal.Inc()
		return
	}
	BoxesTotal.WithLabelValues(string(filter)).Add(float64(boxes))
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

func CheckProcessInfo() {
	MemInfo, err := PID.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(MemInfo.RSS / 1024 / 1024))
	}
	CPUPercent, err := PID.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(CPUPercent*100) / 100)
	}
}

func GotPID() {
	PID.Pid = int32(os.Getpid())
}

// StartMon 启动 /metrics 并每 500ms 采样一次进程信息，ctx 取消后关闭
func StartMon(port int, ctx context.Context) {
	PID = process.Process{}
	GotPID()
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("Prometheus server ListenAndServe error", zap.Error(err))
		}
	}()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			CheckProcessInfo()
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("Prometheus server Shutdown error", zap.Error(err))
	}
}
