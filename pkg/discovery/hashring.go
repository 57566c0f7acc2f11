package discovery

import (
	"hash/crc32"
	"sort"
	"strconv"
)

// DefaultVirtualNodes 每个实例的虚拟节点数
const DefaultVirtualNodes = 64

// hashRing 一致性哈希环
type hashRing struct {
	ring  []uint32          // 排序的哈希值
	addrs map[uint32]string // 哈希值 → 实例地址
}

func newHashRing(addrs []string, virtualNodes int) *hashRing {
	h := &hashRing{
		ring:  make([]uint32, 0, len(addrs)*virtualNodes),
		addrs: make(map[uint32]string, len(addrs)*virtualNodes),
	}
	for _, addr := range addrs {
		for i := 0; i < virtualNodes; i++ {
			hash := crc32.ChecksumIEEE([]byte(addr + "#" + strconv.Itoa(i)))
			h.ring = append(h.ring, hash)
			h.addrs[hash] = addr
		}
	}
	sort.Slice(h.ring, func(i, j int) bool {
		return h.ring[i] < h.ring[j]
	})
	return h
}

// get 返回负责 key 的实例地址
func (h *hashRing) get(key string) string {
	if len(h.ring) == 0 {
		return ""
	}
	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(h.ring), func(i int) bool {
		return h.ring[i] >= hash
	})
	if idx >= len(h.ring) {
		idx = 0
	}
	return h.addrs[h.ring[idx]]
}
