package session

import (
	"container/list"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"boundary-map/internal/logger"
	"boundary-map/internal/metrics"
)

// 文档注释：会话表（LRU + TTL）
// 背景：会话只保存激活状态与场景，数据集由共享缓存持有；容量满时淘汰最久未访问的会话。
// 约束：过期检查在访问时进行，不启动后台定时器。
type Manager struct {
	deps Deps
	cap  int
	ttl  time.Duration
	now  func() time.Time

	mu   sync.Mutex
	lst  *list.List
	dict map[string]*list.Element
}

type entry struct {
	s    *Session
	seen time.Time
}

func NewManager(d Deps, capacity int, ttl time.Duration) *Manager {
	if capacity <= 0 {
		capacity = 1024
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Manager{deps: d, cap: capacity, ttl: ttl, now: time.Now, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (m *Manager) Create() *Session {
	s := newSession(newID(), m.deps)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dict[s.ID] = m.lst.PushFront(&entry{s: s, seen: m.now()})
	for m.lst.Len() > m.cap {
		back := m.lst.Back()
		m.removeLocked(back)
		logger.L().Debug("session_evicted", "id", back.Value.(*entry).s.ID)
	}
	metrics.SessionsActive.Set(float64(m.lst.Len()))
	return s
}

// Get：命中且未过期时刷新访问时间
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.dict[id]
	if !ok {
		return nil, false
	}
	it := e.Value.(*entry)
	now := m.now()
	if now.Sub(it.seen) > m.ttl {
		m.removeLocked(e)
		metrics.SessionsActive.Set(float64(m.lst.Len()))
		logger.L().Debug("session_expired", "id", id)
		return nil, false
	}
	it.seen = now
	m.lst.MoveToFront(e)
	return it.s, true
}

func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.dict[id]
	if !ok {
		return false
	}
	m.removeLocked(e)
	metrics.SessionsActive.Set(float64(m.lst.Len()))
	return true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lst.Len()
}

func (m *Manager) removeLocked(e *list.Element) {
	delete(m.dict, e.Value.(*entry).s.ID)
	m.lst.Remove(e)
}

func newID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
