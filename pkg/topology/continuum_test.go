package topology

import (
	"fmt"
	"math"
	"testing"

	"shardproxy/pkg/conf"
	"shardproxy/pkg/hashkit"
)

// континуум из N серверов с весом 1
func makeContinuum(dist hashkit.Distribution, n int) (*Continuum, *ServerList) {
	var list ServerList
	for i := 1; i <= n; i++ {
		list.Append("alpha", conf.ServerDeclaration{
			PName:  fmt.Sprintf("10.0.0.%d:6379", i),
			Name:   fmt.Sprintf("10.0.0.%d:6379", i),
			Weight: 1,
		})
	}
	c := NewContinuum(dist, hashkit.FNV1a_64.Func(), DefaultPointsPerWeight)
	c.Rebuild(list.Snapshot())
	return c, &list
}

// равномерность распределения ~ 1/N с допуском
func TestContinuum_DistributionUniformity(t *testing.T) {
	N := 3
	c, _ := makeContinuum(hashkit.Ketama, N)
	total := 60_000

	counts := map[int]int{}
	for i := 0; i < total; i++ {
		k := fmt.Sprintf("key-%d", i)
		idx, ok := c.Lookup([]byte(k))
		if !ok {
			t.Fatalf("continuum returned no owner for key %q", k)
		}
		counts[idx]++
	}
	ideal := float64(total) / float64(N)
	tolerance := 0.25 * ideal

	for idx, n := range counts {
		diff := math.Abs(float64(n) - ideal)
		if diff > tolerance {
			t.Fatalf("server %d: count=%d ideal=%.0f diff=%.0f > tol=%.0f", idx, n, ideal, diff, tolerance)
		}
	}
}

// минимальные перемещения при добавлении сервера (~1/(N+1))
func TestContinuum_MinimalMovementOnAdd(t *testing.T) {
	total := 100_000
	c, list := makeContinuum(hashkit.Ketama, 3)

	before := make([]int, total)
	for i := 0; i < total; i++ {
		idx, ok := c.Lookup([]byte(fmt.Sprintf("k-%d", i)))
		if !ok {
			t.Fatalf("no owner before add for i=%d", i)
		}
		before[i] = idx
	}

	list.Append("alpha", conf.ServerDeclaration{PName: "10.0.0.4:6379", Name: "10.0.0.4:6379", Weight: 1})
	c.Rebuild(list.Snapshot())

	moved := 0
	for i := 0; i < total; i++ {
		now, ok := c.Lookup([]byte(fmt.Sprintf("k-%d", i)))
		if !ok {
			t.Fatalf("no owner after add for i=%d", i)
		}
		if before[i] != now {
			if now != 3 {
				t.Fatalf("key k-%d moved between old servers %d -> %d", i, before[i], now)
			}
			moved++
		}
	}
	frac := float64(moved) / float64(total)
	if frac < 0.15 || frac > 0.35 { // ожидаемо около 0.25
		t.Fatalf("moved fraction %.3f out of expected range [0.15..0.35]", frac)
	}
}

func TestContinuum_Deterministic(t *testing.T) {
	a, _ := makeContinuum(hashkit.Ketama, 3)
	b, _ := makeContinuum(hashkit.Ketama, 3)
	for i := 0; i < 10_000; i++ {
		k := []byte(fmt.Sprintf("id-%d", i))
		oa, oka := a.Lookup(k)
		ob, okb := b.Lookup(k)
		if !oka || !okb || oa != ob {
			t.Fatalf("non-deterministic mapping for %s (oka=%v okb=%v oa=%d ob=%d)", k, oka, okb, oa, ob)
		}
	}
}

func TestContinuum_WeightedModula(t *testing.T) {
	var list ServerList
	list.Append("alpha",
		conf.ServerDeclaration{PName: "a:1", Name: "a:1", Weight: 3},
		conf.ServerDeclaration{PName: "b:1", Name: "b:1", Weight: 1},
	)
	c := NewContinuum(hashkit.Modula, hashkit.MD5.Func(), 0)
	c.Rebuild(list.Snapshot())

	counts := map[int]int{}
	for i := 0; i < 40_000; i++ {
		idx, ok := c.Lookup([]byte(fmt.Sprintf("m-%d", i)))
		if !ok {
			t.Fatal("no owner")
		}
		counts[idx]++
	}
	if counts[0] < 2*counts[1] {
		t.Fatalf("weight 3 server got %d keys, weight 1 server got %d", counts[0], counts[1])
	}
}

func TestContinuum_Empty(t *testing.T) {
	c := NewContinuum(hashkit.Ketama, hashkit.MD5.Func(), 0)
	c.Rebuild(nil)
	if _, ok := c.Lookup([]byte("foo")); ok {
		t.Fatal("empty continuum returned an owner")
	}
	if c.Points() != 0 {
		t.Fatalf("points=%d", c.Points())
	}
}
