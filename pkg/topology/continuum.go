package topology

import (
	"fmt"
	"hash/crc32"
	"math/rand"
	"sort"
	"sync"

	"shardproxy/pkg/hashkit"
)

// DefaultPointsPerWeight is the number of ring points per unit of weight.
const DefaultPointsPerWeight = 160

// Continuum maps a key hash to a server index. For ketama it is a ring with
// weight-proportional virtual points; modula and random pick from a
// weight-expanded slot list.
type Continuum struct {
	mu       sync.RWMutex
	dist     hashkit.Distribution
	hash     hashkit.Func
	replicas int

	points []uint32       // отсортированные хэши
	owners map[uint32]int // хэш -> индекс сервера
	slots  []int
}

func NewContinuum(dist hashkit.Distribution, hash hashkit.Func, replicas int) *Continuum {
	if replicas <= 0 {
		replicas = DefaultPointsPerWeight
	}
	return &Continuum{
		dist:     dist,
		hash:     hash,
		replicas: replicas,
		owners:   make(map[uint32]int),
	}
}

// Rebuild replaces the points with ones computed from servers.
func (c *Continuum) Rebuild(servers []*Server) {
	points := make([]uint32, 0, len(servers)*c.replicas)
	owners := make(map[uint32]int, len(servers)*c.replicas)
	var slots []int

	for _, s := range servers {
		weight := max(s.Weight, 1)
		for i := 0; i < weight; i++ {
			slots = append(slots, s.Index)
		}
		for i := 0; i < c.replicas*weight; i++ {
			point := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", s.Name, i)))
			if _, taken := owners[point]; taken {
				continue
			}
			points = append(points, point)
			owners[point] = s.Index
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })

	c.mu.Lock()
	c.points, c.owners, c.slots = points, owners, slots
	c.mu.Unlock()
}

// Lookup returns the index of the server that owns key.
func (c *Continuum) Lookup(key []byte) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.slots) == 0 {
		return 0, false
	}

	switch c.dist {
	case hashkit.Modula:
		return c.slots[c.hash(key)%uint32(len(c.slots))], true
	case hashkit.Random:
		return c.slots[rand.Intn(len(c.slots))], true
	}

	h := c.hash(key)
	idx := sort.Search(len(c.points), func(i int) bool { return c.points[i] >= h })
	if idx == len(c.points) {
		idx = 0
	}
	return c.owners[c.points[idx]], true
}

// Points returns the number of ring points.
func (c *Continuum) Points() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.points)
}
