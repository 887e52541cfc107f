package georouter

import (
	"context"
	"sync"

	"github.com/dep2p/go-deskrelay/pkg/types"
)

// StaticLocationService 静态表定位服务
//
// 由运维预置 IP → 位置映射，未命中时退回默认位置。
// 生产部署可替换为外部 GeoIP 服务的实现。
type StaticLocationService struct {
	mu       sync.RWMutex
	entries  map[string]*types.ClientLocation
	fallback *types.ClientLocation
}

// NewStaticLocationService 创建静态定位服务
func NewStaticLocationService() *StaticLocationService {
	return &StaticLocationService{
		entries: make(map[string]*types.ClientLocation),
	}
}

// Add 预置一条 IP 定位记录
func (s *StaticLocationService) Add(ip string, loc *types.ClientLocation) {
	s.mu.Lock()
	s.entries[ip] = loc
	s.mu.Unlock()
}

// SetFallback 设置未命中时的默认位置（nil 表示未命中报错）
func (s *StaticLocationService) SetFallback(loc *types.ClientLocation) {
	s.mu.Lock()
	s.fallback = loc
	s.mu.Unlock()
}

// Locate 将 IP 映射为客户端位置
func (s *StaticLocationService) Locate(_ context.Context, ip string) (*types.ClientLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if loc, ok := s.entries[ip]; ok {
		out := *loc
		out.IP = ip
		return &out, nil
	}
	if s.fallback != nil {
		out := *s.fallback
		out.IP = ip
		return &out, nil
	}
	return nil, ErrLocationUnknown
}
