package topology

import (
	"github.com/zhangyunhao116/skipmap"
)

// PoolSet holds runtime pools ordered by name.
type PoolSet struct {
	m *skipmap.FuncMap[string, *Pool]
}

func NewPoolSet(pools ...*Pool) *PoolSet {
	s := &PoolSet{
		m: skipmap.NewFunc[string, *Pool](func(a, b string) bool {
			return a < b
		}),
	}
	for _, p := range pools {
		s.Add(p)
	}
	return s
}

// Add stores p unless a pool with the same name exists.
func (s *PoolSet) Add(p *Pool) bool {
	_, loaded := s.m.LoadOrStore(p.Name, p)
	return !loaded
}

func (s *PoolSet) Get(name string) (*Pool, bool) {
	return s.m.Load(name)
}

func (s *PoolSet) Len() int {
	return s.m.Len()
}

// Range calls f for every pool in name order until f returns false.
func (s *PoolSet) Range(f func(p *Pool) bool) {
	s.m.Range(func(_ string, p *Pool) bool {
		return f(p)
	})
}

func (s *PoolSet) Pools() []*Pool {
	out := make([]*Pool, 0, s.Len())
	s.Range(func(p *Pool) bool {
		out = append(out, p)
		return true
	})
	return out
}
