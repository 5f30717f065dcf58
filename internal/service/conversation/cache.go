package conversation

import (
	"github.com/patrickmn/go-cache"

	"github.com/ashwinyue/next-chat/internal/metrics"
	chatmodel "github.com/ashwinyue/next-chat/internal/model"
)

// Cache 进程内的 sessionID → 句柄映射
// 无容量上限、无过期时间；持久化日志才是事实来源
type Cache struct {
	items   *cache.Cache
	factory *Factory
	metrics *metrics.Metrics
}

// NewCache 创建句柄缓存
func NewCache(factory *Factory, m *metrics.Metrics) *Cache {
	c := &Cache{
		// cleanupInterval 为 0 时不启动清理协程
		items:   cache.New(cache.NoExpiration, 0),
		factory: factory,
		metrics: m,
	}
	m.WatchCachedHandles(c.Len)
	return c
}

// Get 查找句柄
func (c *Cache) Get(sessionID string) (*Handle, bool) {
	if x, found := c.items.Get(sessionID); found {
		return x.(*Handle), true
	}
	return nil, false
}

// Put 写入句柄，已存在时直接覆盖
func (c *Cache) Put(sessionID string, h *Handle) {
	c.items.Set(sessionID, h, cache.NoExpiration)
}

// Evict 移除句柄，不存在时无操作
func (c *Cache) Evict(sessionID string) {
	c.items.Delete(sessionID)
}

// Len 当前缓存的句柄数量
func (c *Cache) Len() int {
	return c.items.ItemCount()
}

// NewEmpty 创建并缓存一个空句柄（新建会话时使用）
func (c *Cache) NewEmpty(sessionID string) *Handle {
	h := c.factory.New(nil)
	c.Put(sessionID, h)
	return h
}

// Resolve 获取句柄，未命中时用存储的消息日志重建并写入缓存
// 第二个返回值表示是否发生了重建
func (c *Cache) Resolve(sessionID string, stored []chatmodel.ChatMessage) (*Handle, bool) {
	if h, ok := c.Get(sessionID); ok {
		c.metrics.CacheLookup(true)
		return h, false
	}
	c.metrics.CacheLookup(false)

	h := c.factory.New(ReplayHistory(stored))
	if err := c.items.Add(sessionID, h, cache.NoExpiration); err != nil {
		// 并发重建时以先写入者为准
		if existing, ok := c.Get(sessionID); ok {
			return existing, false
		}
		c.Put(sessionID, h)
	}
	return h, true
}
