package service

import (
    "hash/fnv"
    "sort"
    "sync"
)

// keyMutex 分段锁：同一 followee 的读改写串行化，不同 followee 互不阻塞
type keyMutex struct {
    shards []sync.Mutex
}

func newKeyMutex(shards int) *keyMutex {
    if shards <= 0 {
        shards = 64
    }
    return &keyMutex{shards: make([]sync.Mutex, shards)}
}

func (m *keyMutex) shardOf(key string) int {
    h := fnv.New32a()
    _, _ = h.Write([]byte(key))
    return int(h.Sum32()) % len(m.shards)
}

// Lock 锁单个 key，返回解锁函数
func (m *keyMutex) Lock(key string) func() {
    i := m.shardOf(key)
    m.shards[i].Lock()
    return m.shards[i].Unlock
}

// LockMany 锁一组 key：分片去重后按序加锁，避免级联删除时自锁或互锁
func (m *keyMutex) LockMany(keys []string) func() {
    seen := make(map[int]bool, len(keys))
    idx := make([]int, 0, len(keys))
    for _, k := range keys {
        i := m.shardOf(k)
        if !seen[i] {
            seen[i] = true
            idx = append(idx, i)
        }
    }
    sort.Ints(idx)
    for _, i := range idx {
        m.shards[i].Lock()
    }
    return func() {
        for j := len(idx) - 1; j >= 0; j-- {
            m.shards[idx[j]].Unlock()
        }
    }
}
