// Package discovery 提供服务名到实例地址的解析
package discovery

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/qiminjie89/quasihttp/pkg/logger"
	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
)

// ErrNoInstance 服务没有健康实例
var ErrNoInstance = errors.New("discovery: no healthy instance")

// Instance 服务实例
type Instance struct {
	Service string
	Addr    string
	Healthy bool
}

// Callback 服务实例变更回调
type Callback func(instances []Instance)

// Registry 服务注册表
type Registry struct {
	mu        sync.RWMutex
	services  map[string][]Instance // service → instances
	callbacks map[string][]Callback // service → callbacks
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{
		services:  make(map[string][]Instance),
		callbacks: make(map[string][]Callback),
	}
}

// NewStaticRegistry 由 service → 地址列表 构造注册表，实例均视为健康
func NewStaticRegistry(services map[string][]string) *Registry {
	r := NewRegistry()
	for name, addrs := range services {
		for _, addr := range addrs {
			r.Register(Instance{Service: name, Addr: addr, Healthy: true})
		}
	}
	return r
}

// Register 注册实例，地址已存在时覆盖
func (r *Registry) Register(inst Instance) {
	logger.Info("registering service instance",
		zap.String("service", inst.Service),
		zap.String("addr", inst.Addr),
	)

	r.update(inst.Service, func(instances []Instance) []Instance {
		for i := range instances {
			if instances[i].Addr == inst.Addr {
				instances[i] = inst
				return instances
			}
		}
		return append(instances, inst)
	})
}

// Deregister 注销实例
func (r *Registry) Deregister(service, addr string) {
	logger.Info("deregistering service instance",
		zap.String("service", service),
		zap.String("addr", addr),
	)

	r.update(service, func(instances []Instance) []Instance {
		out := instances[:0]
		for _, inst := range instances {
			if inst.Addr != addr {
				out = append(out, inst)
			}
		}
		return out
	})
}

// SetHealthy 更新实例健康状态
func (r *Registry) SetHealthy(service, addr string, healthy bool) {
	r.update(service, func(instances []Instance) []Instance {
		for i := range instances {
			if instances[i].Addr == addr {
				instances[i].Healthy = healthy
			}
		}
		return instances
	})
}

// update 修改实例列表，有变更时触发回调
func (r *Registry) update(service string, fn func([]Instance) []Instance) {
	r.mu.Lock()
	old := r.services[service]
	instances := fn(append([]Instance(nil), old...))
	r.services[service] = instances
	callbacks := r.callbacks[service]
	r.mu.Unlock()

	// 检查是否有变更
	if instancesEqual(old, instances) {
		return
	}
	logger.Info("service instances changed",
		zap.String("service", service),
		zap.Int("count", len(instances)),
	)
	for _, cb := range callbacks {
		go cb(append([]Instance(nil), instances...))
	}
}

// instancesEqual 比较两个实例列表是否相等
func instancesEqual(a, b []Instance) bool {
	if len(a) != len(b) {
		return false
	}
	aMap := make(map[string]bool, len(a))
	for _, inst := range a {
		aMap[inst.Addr] = inst.Healthy
	}
	for _, inst := range b {
		if healthy, ok := aMap[inst.Addr]; !ok || healthy != inst.Healthy {
			return false
		}
	}
	return true
}

// Subscribe 订阅服务变更
func (r *Registry) Subscribe(service string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[service] = append(r.callbacks[service], cb)
}

// Instances 返回服务实例列表
func (r *Registry) Instances(service string) []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Instance(nil), r.services[service]...)
}

// Has 服务是否已注册
func (r *Registry) Has(service string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.services[service]
	return ok
}

// Pick 随机选取一个健康实例
func (r *Registry) Pick(service string) (Instance, error) {
	instances := r.Instances(service)

	healthy := make([]Instance, 0, len(instances))
	for _, inst := range instances {
		if inst.Healthy {
			healthy = append(healthy, inst)
		}
	}
	if len(healthy) == 0 {
		return Instance{}, ErrNoInstance
	}
	return healthy[rand.Intn(len(healthy))], nil
}

// PickKey 按一致性哈希为 key 选取健康实例，同一组健康实例下结果稳定
func (r *Registry) PickKey(service, key string) (Instance, error) {
	var healthy []Instance
	for _, inst := range r.Instances(service) {
		if inst.Healthy {
			healthy = append(healthy, inst)
		}
	}
	if len(healthy) == 0 {
		return Instance{}, ErrNoInstance
	}

	addrs := make([]string, len(healthy))
	for i, inst := range healthy {
		addrs[i] = inst.Addr
	}
	addr := newHashRing(addrs, DefaultVirtualNodes).get(key)
	for _, inst := range healthy {
		if inst.Addr == addr {
			return inst, nil
		}
	}
	return Instance{}, ErrNoInstance
}

// ExtraHashKey Options.Extra 中的一致性哈希键，存在时按 PickKey 选取实例
const ExtraHashKey = "discovery.hash_key"

// Transport 按服务名解析 remote 后交给下层传输，未注册的 remote 原样使用
type Transport struct {
	Registry *Registry
	Next     quasihttp.ClientTransport
}

// AllocateConnection 解析 remote 并分配连接
func (t *Transport) AllocateConnection(ctx context.Context, remote string, opts *quasihttp.Options) (quasihttp.Connection, error) {
	if t.Registry.Has(remote) {
		var (
			inst Instance
			err  error
		)
		if key, ok := hashKey(opts); ok {
			inst, err = t.Registry.PickKey(remote, key)
		} else {
			inst, err = t.Registry.Pick(remote)
		}
		if err != nil {
			return nil, err
		}
		logger.Debug("resolved remote",
			zap.String("service", remote),
			zap.String("addr", inst.Addr),
		)
		remote = inst.Addr
	}
	return t.Next.AllocateConnection(ctx, remote, opts)
}

func hashKey(opts *quasihttp.Options) (string, bool) {
	if opts == nil {
		return "", false
	}
	key, ok := opts.Extra[ExtraHashKey].(string)
	return key, ok && key != ""
}
