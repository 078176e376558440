package cache

import "container/list"

// lruList tracks idle keys in recency order with a fixed capacity.
// It is not safe for concurrent use; the Store guards it with its mutex.
type lruList[K comparable] struct {
	maxSize int
	ll      *list.List          // front is the most recently retained key
	items   map[K]*list.Element // fast key lookups
}

func newLRUList[K comparable](maxSize int) *lruList[K] {
	return &lruList[K]{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[K]*list.Element),
	}
}

// push adds key as the most recent item. When the list grows past capacity the
// least recently used key is removed and returned.
func (l *lruList[K]) push(key K) (evicted K, ok bool) {
	if elem, found := l.items[key]; found {
		l.ll.MoveToFront(elem)
		return evicted, false
	}
	l.items[key] = l.ll.PushFront(key)
	if l.ll.Len() > l.maxSize {
		back := l.ll.Back()
		evicted = l.ll.Remove(back).(K)
		delete(l.items, evicted)
		return evicted, true
	}
	return evicted, false
}

func (l *lruList[K]) remove(key K) {
	if elem, ok := l.items[key]; ok {
		l.ll.Remove(elem)
		delete(l.items, key)
	}
}

func (l *lruList[K]) contains(key K) bool {
	_, ok := l.items[key]
	return ok
}

func (l *lruList[K]) len() int { return l.ll.Len() }

func (l *lruList[K]) clear() {
	l.ll.Init()
	l.items = make(map[K]*list.Element)
}
