package media_resolver

import (
	"fmt"
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestLimitedMapFIFO(t *testing.T) {
	assert := assert_.New(t)
	m := NewLimitedMap[string, int](2)
	m.Put("A", 1)
	m.Put("B", 2)
	// Reading A must not save it from eviction
	_, ok := m.Get("A")
	assert.True(ok)
	m.Put("C", 3)

	assert.Equal([]string{"B", "C"}, m.Keys())
	_, ok = m.Get("A")
	assert.False(ok)
	assert.Equal(2, m.Len())
}

func TestLimitedMapOverwriteKeepsPosition(t *testing.T) {
	assert := assert_.New(t)
	m := NewLimitedMap[string, int](2)
	m.Put("A", 1)
	m.Put("B", 2)
	m.Put("A", 10)
	v, _ := m.Get("A")
	assert.Equal(10, v)
	m.Put("C", 3)
	assert.Equal([]string{"B", "C"}, m.Keys())
}

func TestLimitedMapNeverExceedsCapacity(t *testing.T) {
	assert := assert_.New(t)
	m := NewLimitedMap[int, int](5)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Put(g*1000+i, i)
				assert.LessOrEqual(m.Len(), 5)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(5, m.Len())
}

func TestResultCache(t *testing.T) {
	assert := assert_.New(t)
	c := NewResultCache(0)
	assert.Equal(1, c.Capacity())
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("BV%d", i), NewResult(Platform{Name: "bilibili"}, ResultOptions{}))
	}
	assert.Equal([]string{"BV2"}, c.Keys())
	assert.True(c.Delete("BV2"))
	assert.False(c.Delete("BV2"))
}
