package rag

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/quilora/backend-go/internal/errors"
	"github.com/quilora/backend-go/internal/logger"
	"go.uber.org/zap"
)

// ErrStreamFailed 流式调用以error事件终止时供调用方记账用的哨兵错误
var ErrStreamFailed = errors.New("stream terminated with error event")

// EventType 流式检索事件类型
type EventType string

const (
	EventDocuments EventType = "documents"
	EventToken     EventType = "token"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event 流式检索的单个事件。一次调用恰好发出一个documents事件，
// 之后零或多个token事件，最后恰好一个done或error事件。
type Event struct {
	Type EventType `json:"type"`

	// documents事件字段
	Count     int        `json:"count,omitempty"`
	Documents []Document `json:"documents,omitempty"`

	// token事件字段
	Content string `json:"content,omitempty"`

	// done事件字段
	TokensStreamed int            `json:"tokens_streamed,omitempty"`
	Metadata       *QueryMetadata `json:"metadata,omitempty"`

	// error事件字段
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Stream 流式检索与生成。所有阶段失败都以error事件形式发出，
// 不返回Go错误，因为HTTP边界此时已承诺chunked响应。
// channel在终止事件后关闭。
func (p *RetrievalPipeline) Stream(ctx context.Context, input QueryInput) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		start := time.Now()

		emit := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		ret, err := p.retrieve(ctx, input)
		if err != nil {
			appErr := apperrors.GetAppError(err)
			emit(Event{
				Type:  EventError,
				Error: appErr.Message,
				Code:  string(appErr.Code),
			})
			return
		}

		topK := input.TopK
		if topK <= 0 {
			topK = p.opts.TopK
		}

		if !emit(Event{
			Type:      EventDocuments,
			Count:     len(ret.documents),
			Documents: ret.documents,
			Metadata: &QueryMetadata{
				NumDocumentsRetrieved: len(ret.documents),
				TopK:                  topK,
				EmbedMS:               ret.embedMS,
				SearchMS:              ret.searchMS,
			},
		}) {
			return
		}

		prompt := buildPrompt(ret.documents, input.Query)

		genCtx, cancel := context.WithTimeout(ctx, p.opts.GenerationTimeout)
		defer cancel()

		generateStart := time.Now()
		tokens := 0
		err = p.generator.Stream(genCtx, prompt, func(token string) error {
			if !emit(Event{Type: EventToken, Content: token}) {
				return ctx.Err()
			}
			tokens++
			return nil
		})
		generateMS := time.Since(generateStart).Milliseconds()

		if err != nil {
			if ctx.Err() != nil {
				// 客户端断开，没有人在读事件了
				return
			}
			if genCtx.Err() == context.DeadlineExceeded {
				logger.Error("streaming generation timed out",
					zap.Duration("timeout", p.opts.GenerationTimeout))
				emit(Event{
					Type:  EventError,
					Error: "generation timed out",
					Code:  string(apperrors.ErrCodeTimeout),
				})
				return
			}
			logger.Error("streaming generation failed", zap.Error(err))
			emit(Event{
				Type:  EventError,
				Error: "generation service failed",
				Code:  string(apperrors.ErrCodeExternalService),
			})
			return
		}

		emit(Event{
			Type:           EventDone,
			TokensStreamed: tokens,
			Metadata: &QueryMetadata{
				NumDocumentsRetrieved: len(ret.documents),
				TopK:                  topK,
				EmbedMS:               ret.embedMS,
				SearchMS:              ret.searchMS,
				GenerateMS:            generateMS,
				TotalMS:               time.Since(start).Milliseconds(),
			},
		})
		logger.Info("streaming query completed",
			zap.Int("tokens", tokens),
			zap.Int64("generate_ms", generateMS))
	}()

	return events
}
