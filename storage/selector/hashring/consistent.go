package hashring

import (
	"errors"
	"slices"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ErrEmptyCircle is returned when looking up a ring with no members.
var ErrEmptyCircle = errors.New("empty circle")

type Node interface {
	ID() string
	Weight() int
}

// Consistent is a weighted consistent hash ring.
type Consistent struct {
	mu sync.RWMutex

	circles  map[uint64]Node
	members  map[string]Node
	points   []uint64
	replicas int
}

// NewConsistent builds a ring holding replicas*weight virtual points per node.
func NewConsistent(nodes []Node, replicas int) *Consistent {
	if replicas < 1 {
		replicas = 1
	}
	c := &Consistent{
		circles:  make(map[uint64]Node),
		members:  make(map[string]Node),
		replicas: replicas,
	}
	c.Set(nodes)
	return c
}

func pointKey(id string, replica, vnode int) string {
	return strconv.Itoa(replica) + "|" + strconv.Itoa(vnode) + "|" + id
}

func weightOf(n Node) int {
	if w := n.Weight(); w > 0 {
		return w
	}
	return 1
}

// Add inserts a node.
func (c *Consistent) Add(n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.add(n)
	c.updatePoints()
}

func (c *Consistent) add(n Node) {
	w := weightOf(n)
	for i := 0; i < c.replicas; i++ {
		for j := 0; j < w; j++ {
			c.circles[xxhash.Sum64String(pointKey(n.ID(), i, j))] = n
		}
	}
	c.members[n.ID()] = n
}

// Remove drops a node.
func (c *Consistent) Remove(n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.remove(n)
	c.updatePoints()
}

func (c *Consistent) remove(n Node) {
	w := weightOf(n)
	for i := 0; i < c.replicas; i++ {
		for j := 0; j < w; j++ {
			delete(c.circles, xxhash.Sum64String(pointKey(n.ID(), i, j)))
		}
	}
	delete(c.members, n.ID())
}

// Set replaces the ring members with nodes.
func (c *Consistent) Set(nodes []Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		want[n.ID()] = n
	}
	for id, n := range c.members {
		if _, ok := want[id]; !ok {
			c.remove(n)
		}
	}
	for id, n := range want {
		if _, ok := c.members[id]; !ok {
			c.add(n)
		}
	}
	c.updatePoints()
}

// Len returns the number of member nodes.
func (c *Consistent) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.members)
}

func (c *Consistent) Members() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := make([]string, 0, len(c.members))
	for id := range c.members {
		m = append(m, id)
	}
	slices.Sort(m)
	return m
}

// Get returns the node owning name.
func (c *Consistent) Get(name string) (Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.points) == 0 {
		return nil, ErrEmptyCircle
	}
	return c.circles[c.points[c.search(xxhash.Sum64String(name))]], nil
}

// GetN returns up to n distinct nodes walking the ring clockwise from name.
func (c *Consistent) GetN(name string, n int) ([]Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.points) == 0 {
		return nil, ErrEmptyCircle
	}
	if n > len(c.members) {
		n = len(c.members)
	}

	res := make([]Node, 0, n)
	start := c.search(xxhash.Sum64String(name))
	for k := 0; k < len(c.points) && len(res) < n; k++ {
		node := c.circles[c.points[(start+k)%len(c.points)]]
		if !slices.ContainsFunc(res, func(m Node) bool { return m.ID() == node.ID() }) {
			res = append(res, node)
		}
	}
	return res, nil
}

func (c *Consistent) search(key uint64) int {
	i, _ := slices.BinarySearch(c.points, key)
	if i >= len(c.points) {
		i = 0
	}
	return i
}

func (c *Consistent) updatePoints() {
	points := c.points[:0]
	for k := range c.circles {
		points = append(points, k)
	}
	slices.Sort(points)
	c.points = points
}
