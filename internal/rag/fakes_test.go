package rag

import (
	"context"
	"errors"
)

// 共享的流水线测试替身

type fakeEmbedder struct {
	calls      int
	batchCalls int
	failFirst  int // 前N次调用返回err
	err        error
	dims       int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failFirst {
		if f.err != nil {
			return nil, f.err
		}
		return nil, errors.New("embed failed")
	}
	return f.vector(), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.batchCalls <= f.failFirst {
		if f.err != nil {
			return nil, f.err
		}
		return nil, errors.New("embed failed")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = f.vector()
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int {
	if f.dims == 0 {
		return 4
	}
	return f.dims
}

func (f *fakeEmbedder) vector() []float32 {
	vec := make([]float32, f.Dimensions())
	for i := range vec {
		vec[i] = 0.1
	}
	return vec
}

type fakeStore struct {
	written       []Document
	writeCalls    int
	searchCalls   int
	searchResults []Document
	searchErr     error
	failSearches  int // 前N次Search返回searchErr
	deleteIDs     []string
	deleteFilters map[string]interface{}
	countTotal    int64
	countByFilter int64
	scrollDocs    []Document
	dropped       bool
	ensured       int
}

func (f *fakeStore) EnsureCollection(ctx context.Context) error {
	f.ensured++
	return nil
}

func (f *fakeStore) Write(ctx context.Context, docs []Document, batchSize int) (int, error) {
	f.writeCalls++
	written := 0
	for _, doc := range docs {
		if doc.Embedding == nil {
			continue
		}
		f.written = append(f.written, doc)
		written++
	}
	return written, nil
}

func (f *fakeStore) Search(ctx context.Context, req SearchRequest) ([]Document, error) {
	f.searchCalls++
	if f.searchCalls <= f.failSearches {
		if f.searchErr != nil {
			return nil, f.searchErr
		}
		return nil, errors.New("search failed")
	}
	if len(f.searchResults) > req.TopK {
		return f.searchResults[:req.TopK], nil
	}
	return f.searchResults, nil
}

func (f *fakeStore) Delete(ctx context.Context, ids []string, filters map[string]interface{}) (DeleteResult, error) {
	f.deleteIDs = ids
	f.deleteFilters = filters
	if len(ids) > 0 {
		return DeleteResult{Count: len(ids), CountKnown: true}, nil
	}
	if len(filters) > 0 {
		return DeleteResult{CountKnown: false}, nil
	}
	return DeleteResult{Count: 0, CountKnown: true}, nil
}

func (f *fakeStore) Count(ctx context.Context) (int64, error) {
	return f.countTotal, nil
}

func (f *fakeStore) CountByFilter(ctx context.Context, filters map[string]interface{}) (int64, error) {
	return f.countByFilter, nil
}

func (f *fakeStore) Scroll(ctx context.Context, limit, offset int) ([]Document, error) {
	return f.scrollDocs, nil
}

func (f *fakeStore) DropCollection(ctx context.Context) error {
	f.dropped = true
	return nil
}

func (f *fakeStore) Close() error { return nil }

type fakeGenerator struct {
	answer    string
	err       error
	tokens    []string
	streamErr error
	called    int
	// blockUntilCtx 为true时Generate/Stream阻塞到ctx取消
	blockUntilCtx bool
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.called++
	if f.blockUntilCtx {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.answer, f.err
}

func (f *fakeGenerator) Stream(ctx context.Context, prompt string, onToken func(token string) error) error {
	f.called++
	if f.blockUntilCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.streamErr != nil {
		return f.streamErr
	}
	for _, token := range f.tokens {
		if err := onToken(token); err != nil {
			return err
		}
	}
	return nil
}
