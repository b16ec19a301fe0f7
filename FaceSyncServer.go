package main

import (
	adhoc "FaceSyncServer/Adhoc"
	"FaceSyncServer/config"
	"FaceSyncServer/engine"
	backend "FaceSyncServer/gRPC"
	iface "FaceSyncServer/interface"
	"FaceSyncServer/logger"
	"FaceSyncServer/monitor"
	"FaceSyncServer/session"
	"FaceSyncServer/web"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if cfg.Development {
		err = logger.InitDevelopment(cfg.Log)
	} else {
		err = logger.InitProduction(cfg.Log)
	}
	if err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	fmt.Println(strings.Repeat("#", 64))
	fmt.Println(" HTTP    Port:", cfg.HTTPPort)
	fmt.Println(" gRPC    Port:", cfg.RPCPort)
	fmt.Println(" Metrics Port:", cfg.MetricsPort)
	fmt.Println(" Max Sessions:", cfg.MaxSessions)
	fmt.Println(" Frame Rate  :", cfg.FrameRate)
	fmt.Println(strings.Repeat("#", 64))

	sim := engine.NewSimulator(monitor.Recorder{})
	manager := session.NewManager(session.ManagerConfig{
		MaxSessions: cfg.MaxSessions,
		IdleTimeout: cfg.IdleTimeout(),
		Options: session.Options{
			Simulator:     sim,
			Interval:      cfg.FrameInterval(),
			DefaultFilter: iface.Filter(cfg.DefaultFilter),
			Seed:          cfg.Seed,
		},
	})
	defer manager.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	var wg sync.WaitGroup

	if cfg.UseRegServer {
		ip, err := adhoc.GetOutboundIP()
		if err != nil {
			logger.Log().Error("Failed to get outbound IP", zap.Error(err))
		} else {
			reg := adhoc.RegServerConfig{}
			reg.SetAddress(cfg.RegServerHost, cfg.RegServerPort)
			wg.Add(1)
			go adhoc.NewHeartbeat(reg, ip, cfg.RPCPort, cfg.HTTPPort).Run(ctx, &wg)
		}
	} else {
		fmt.Println("UseRegServer is set to false, skipping registration")
	}

	rpc := backend.NewServer(manager, sim)
	grpcServer, err := backend.StartGRPCServer(cfg.RPCPort, rpc)
	if err != nil {
		logger.Log().Error("Failed to start gRPC server", zap.Error(err))
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.StartMon(cfg.MetricsPort, ctx)
	}()

	httpServer := web.New(manager, sim, web.Config{IdleTimeout: cfg.IdleTimeout()})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Run(ctx, cfg.HTTPPort); err != nil {
			logger.Log().Error("HTTP server stopped", zap.Error(err))
			cancel()
		}
	}()

	select {
	case <-ctx.Done():
	case <-rpc.Done():
	}
	cancel()
	// 先关闭会话，WatchSession 流随订阅关闭而结束
	manager.Close()
	grpcServer.GracefulStop()
	fmt.Println("Done")
	wg.Wait()
	fmt.Println("Safely exited")
}
