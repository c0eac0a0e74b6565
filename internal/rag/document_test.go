package rag

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var uuidShape = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("doc1")
	b := PointID("doc1")
	assert.Equal(t, a, b)

	c := PointID("doc2")
	assert.NotEqual(t, a, c)
}

func TestPointIDShape(t *testing.T) {
	for _, id := range []string{"doc1", "", "文档", "a#0"} {
		assert.Regexp(t, uuidShape, PointID(id))
	}
}

func TestPointIDKnownValue(t *testing.T) {
	// MD5("doc1") = 83e4b178... 分段为UUID形状
	assert.Equal(t, "83e4b178-9306-d3d1-c991-40df3827d600", PointID("doc1"))
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "doc1#0", ChunkID("doc1", 0))
	assert.Equal(t, "doc1#12", ChunkID("doc1", 12))
	assert.NotEqual(t, ChunkID("doc1", 1), ChunkID("doc1", 2))
}
