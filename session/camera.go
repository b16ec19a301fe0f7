package session

import (
	iface "FaceSyncServer/interface"
	"context"
	"fmt"
	"sync"
)

// ClientCamera 代表浏览器端的摄像头。设备由浏览器持有，这里只根据其上报的授权结果切换状态。
type ClientCamera struct {
	mu        sync.Mutex
	streaming bool
}

func (c *ClientCamera) Start(ctx context.Context, p iface.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch p {
	case iface.PermissionGranted:
	case iface.PermissionDenied:
		return ErrPermissionDenied
	case iface.PermissionUnsupported:
		return ErrUnsupportedDevice
	default:
		return fmt.Errorf("permission %q: %w", p, ErrPermissionDenied)
	}
	c.mu.Lock()
	c.streaming = true
	c.mu.Unlock()
	return nil
}

func (c *ClientCamera) Stop() {
	c.mu.Lock()
	c.streaming = false
	c.mu.Unlock()
}

func (c *ClientCamera) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

var _ iface.Camera = (*ClientCamera)(nil)
