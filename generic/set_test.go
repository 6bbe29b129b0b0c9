package generic

import (
	"errors"
	"sort"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	assert := assert_.New(t)

	s := NewSet[int]()
	assert.Equal(0, s.Count())
	assert.False(s.Contains(1))
	assert.True(s.Add(1))
	assert.Equal(1, s.Count())
	assert.True(s.Contains(1))
	assert.False(s.Add(1))
	assert.Equal(1, s.Count())
	assert.True(s.Contains(1))
	assert.True(s.Remove(1))
	assert.Equal(0, s.Count())
	assert.False(s.Contains(1))
	assert.False(s.Remove(1))
	assert.Equal(0, s.Count())
	assert.False(s.Contains(1))

	s2 := s.Clone()
	assert.True(s2.Add(1))
	assert.Equal(1, s2.Count())
	assert.True(s2.Contains(1))
	assert.False(s.Contains(1))

	s2.Clear()
	assert.False(s2.Contains(1))

	s3 := NewSet(1, 2, 3)
	assert.True(s3.Contains(3))
	items := s3.ToSlice()
	sort.Ints(items)
	assert.Equal([]int{1, 2, 3}, items)

	s4 := s3.Clone()
	items = s4.ToSlice()
	sort.Ints(items)
	assert.Equal([]int{1, 2, 3}, items)
}

func TestSetContainsAny(t *testing.T) {
	assert := assert_.New(t)
	s := NewSet("bilibili", "youtube")
	assert.True(s.ContainsAny("acfun", "youtube"))
	assert.False(s.ContainsAny("acfun", "twitter"))
	assert.False(s.ContainsAny())
	assert.True(s.Contains())
}

func TestOptionNonZero(t *testing.T) {
	assert := assert_.New(t)
	some := NonZero("avatar.jpg")
	assert.True(some.IsSome())
	assert.Equal("avatar.jpg", some.Unwrap())
	none := NonZero("")
	assert.True(none.IsNone())
	assert.Equal("fallback", none.UnwrapOr("fallback"))
	assert.Panics(func() { none.Unwrap() })

	ok := OptionOf(3, true)
	assert.Equal(3, ok.UnwrapOrDefault())
	missing := OptionOf(3, false)
	assert.Equal(0, missing.UnwrapOrDefault())
}

func TestResultParts(t *testing.T) {
	assert := assert_.New(t)
	v, err := Ok(5).Parts()
	assert.Equal(5, v)
	assert.NoError(err)
	r := Err[int](ErrTest)
	assert.True(r.IsErr())
	_, err = r.Parts()
	assert.ErrorIs(err, ErrTest)
	assert.Equal(7, r.UnwrapOr(7))
}

var ErrTest = errors.New("test error")
