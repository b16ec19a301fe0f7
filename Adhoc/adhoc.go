package Adhoc

import (
	iface "FaceSyncServer/interface"
	"FaceSyncServer/logger"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const TimeOutSeconds = 5

type RegisterRequest struct {
	Id        string         `json:"id"`
	IP        string         `json:"ip"`
	Port      int            `json:"port"`
	HTTPPort  int            `json:"httpPort"`
	Filters   []iface.Filter `json:"filters"`
	TimeStamp int64          `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
	// Interval 为 0 时使用 TimeOutSeconds
	Interval time.Duration
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

func (reg RegServerConfig) url() string {
	return fmt.Sprintf("http://%s/api/register", net.JoinHostPort(reg.Addr, fmt.Sprint(reg.Port)))
}

// GetOutboundIP 通过 UDP 拨号拿到本机出口 IP，不会真正发包
func GetOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

type Heartbeat struct {
	cfg    RegServerConfig
	client *resty.Client
	req    RegisterRequest
}

func NewHeartbeat(cfg RegServerConfig, ip string, rpcPort, httpPort int) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = TimeOutSeconds * time.Second
	}
	return &Heartbeat{
		cfg:    cfg,
		client: resty.New().SetTimeout(TimeOutSeconds * time.Second),
		req: RegisterRequest{
			Id:       uuid.NewString(),
			IP:       ip,
			Port:     rpcPort,
			HTTPPort: httpPort,
			Filters:  iface.Filters,
		},
	}
}

func (h *Heartbeat) ID() string {
	return h.req.Id
}

// Send 发送一次注册，请求失败或注册中心拒绝时返回 error
func (h *Heartbeat) Send(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register panic: %v", r)
		}
	}()
	var respBody RegisterResponse
	body := h.req
	body.TimeStamp = time.Now().Unix()
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&respBody).
		Post(h.cfg.url())
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	if !respBody.Success {
		return fmt.Errorf("registration rejected for %s", h.req.Id)
	}
	return nil
}

// Run 立即注册一次，之后按 Interval 续约，直到 ctx 取消
func (h *Heartbeat) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()
	beat := func() {
		if err := h.Send(ctx); err != nil && ctx.Err() == nil {
			logger.Log().Error("heartbeat failed", zap.String("id", h.req.Id), zap.Error(err))
		}
	}
	beat()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("Heartbeat context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			beat()
		}
	}
}
