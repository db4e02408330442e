// internal/bank/lock.go
//
// 以帳戶 ID 為鍵的互斥鎖，序列化同一帳戶上的讀取-修改-寫入流程。
// 多把鎖一律依排序後的 ID 取得，避免 A→B 與 B→A 同時轉帳造成死結。

package bank

import (
	"context"
	"slices"
	"sync"
)

// Locker 取得一組帳戶鎖；回傳的 unlock 釋放所有已取得的鎖。
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func() error, err error)
}

// KeyedLocker 為單一行程內的 Locker 實作。
// 每個鍵對應一個容量為 1 的 channel，等待時可被 ctx 取消。
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedLocker 建立空的行程內鎖。
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: make(map[string]*slot)}
}

// Lock 依序取得 keys 的鎖；重複的鍵只取一次。
func (l *KeyedLocker) Lock(ctx context.Context, keys ...string) (func() error, error) {
	keys = lockOrder(keys)
	held := make([]string, 0, len(keys))

	release := func() error {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i], true)
		}
		held = held[:0]
		return nil
	}

	for _, k := range keys {
		s := l.acquireRef(k)
		select {
		case s.ch <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			l.release(k, false)
			_ = release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

func (l *KeyedLocker) acquireRef(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

// release 減少參考計數；held 為 true 時同時釋放鎖。沒有等待者的鍵會被移除。
func (l *KeyedLocker) release(key string, held bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[key]
	if held {
		<-s.ch
	}
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// lockOrder 去除空字串與重複鍵並排序。
func lockOrder(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// LockOrder 供其他 Locker 實作共用相同的取鎖順序。
func LockOrder(keys ...string) []string { return lockOrder(keys) }
