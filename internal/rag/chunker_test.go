package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkerSplitEmpty(t *testing.T) {
	chunker := NewChunker(10, 2)
	assert.Nil(t, chunker.Split(""))
	assert.Nil(t, chunker.Split("   \n\t  "))
}

func TestChunkerSplitSingleChunk(t *testing.T) {
	chunker := NewChunker(10, 2)
	chunks := chunker.Split("one two three")
	assert.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, "one two three", chunks[0].Text)
}

func TestChunkerSplitOverlap(t *testing.T) {
	words := make([]string, 20)
	for i := range words {
		words[i] = "w"
	}
	chunker := NewChunker(8, 2)
	chunks := chunker.Split(strings.Join(words, " "))

	// 步长6：块起点 0, 6, 12, 18
	assert.Len(t, chunks, 4)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.LessOrEqual(t, len(strings.Fields(chunk.Text)), 8)
	}
	// 相邻块之间有2个词重叠
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[6:], second[:2])
}

func TestChunkerDefaults(t *testing.T) {
	chunker := NewChunker(0, -1)
	assert.Equal(t, 512, chunker.chunkSize)
	assert.Equal(t, 0, chunker.chunkOverlap)

	// overlap不小于chunkSize
	chunker = NewChunker(10, 10)
	assert.Equal(t, 2, chunker.chunkOverlap)
}

func TestChunkerNormalizesWhitespace(t *testing.T) {
	chunker := NewChunker(100, 0)
	chunks := chunker.Split("hello\n\n  world\t!")
	assert.Len(t, chunks, 1)
	assert.Equal(t, "hello world !", chunks[0].Text)
}
