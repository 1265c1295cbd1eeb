package database

import (
	"fmt"
	"sync"

	"linkshare-backend/pkg/models"
)

// notifier 管理各集合的订阅者，供所有后端复用。
// 回调交付语义为 at-least-once：重复通知是允许的，丢失不允许。
type notifier struct {
	mu    sync.Mutex
	next  int
	subs  map[string]map[int]func([]models.Record)
	fetch func(collection string) ([]models.Record, error)
}

func newNotifier(fetch func(string) ([]models.Record, error)) *notifier {
	return &notifier{
		subs:  make(map[string]map[int]func([]models.Record)),
		fetch: fetch,
	}
}

// subscribe 注册订阅者并立即以当前内容回调一次
func (n *notifier) subscribe(collection string, fn func([]models.Record)) (func(), error) {
	if !knownCollection(collection) {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}

	records, err := n.fetch(collection)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	if n.subs[collection] == nil {
		n.subs[collection] = make(map[int]func([]models.Record))
	}
	id := n.next
	n.next++
	n.subs[collection][id] = fn
	n.mu.Unlock()

	// 注册后立即交付当前内容
	fn(records)

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs[collection], id)
	}
	return unsubscribe, nil
}

// broadcast 向集合的所有订阅者交付最新内容
func (n *notifier) broadcast(collection string) {
	n.mu.Lock()
	fns := make([]func([]models.Record), 0, len(n.subs[collection]))
	for _, fn := range n.subs[collection] {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	if len(fns) == 0 {
		return
	}

	records, err := n.fetch(collection)
	if err != nil {
		fmt.Printf("⚠️  Failed to fetch %s for change notification: %v\n", collection, err)
		return
	}

	for _, fn := range fns {
		fn(records)
	}
}
