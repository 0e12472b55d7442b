package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStablePartition(t *testing.T) {
	s := []int{1, 8, 2, 9, 3, 7, 4}
	m := StablePartition(s, 0, len(s), func(v int) bool { return v < 5 })
	assert.Equal(t, 4, m)
	assert.Equal(t, []int{1, 2, 3, 4, 8, 9, 7}, s)
}

func TestStablePartitionAllMatch(t *testing.T) {
	s := []string{"a", "b", "c"}
	m := StablePartition(s, 0, len(s), func(string) bool { return true })
	assert.Equal(t, 3, m)
	assert.Equal(t, []string{"a", "b", "c"}, s)
}

func TestStablePartitionNoneMatch(t *testing.T) {
	s := []string{"a", "b", "c"}
	m := StablePartition(s, 0, len(s), func(string) bool { return false })
	assert.Equal(t, 0, m)
	assert.Equal(t, []string{"a", "b", "c"}, s)
}

func TestStablePartitionEmpty(t *testing.T) {
	var s []int
	assert.Equal(t, 0, StablePartition(s, 0, 0, func(int) bool { return true }))
}
