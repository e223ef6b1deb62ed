package internal

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dianlight/gollama.cpp"
	"go.uber.org/zap"
)

const maxEmbedTokens = 512

var _ Embedder = (*LocalEmbedder)(nil)

// LocalEmbedder runs a GGUF sentence-embedding model in process through
// llama.cpp. Token outputs are mean-pooled and L2-normalised here.
type LocalEmbedder struct {
	mu        sync.Mutex
	model     gollama.LlamaModel
	ctx       gollama.LlamaContext
	dimension int
	device    Device
	name      string
	errs      *gollama.ErrorHandler
}

type EmbedderOption func(*embedderConfig)

type embedderConfig struct {
	logger *zap.Logger
	name   string
	device Device
}

// WithEmbedderLogger receives llama.cpp call failures at debug level.
func WithEmbedderLogger(l *zap.Logger) EmbedderOption {
	return func(c *embedderConfig) { c.logger = l }
}

// WithDevice overrides hardware detection.
func WithDevice(d Device) EmbedderOption {
	return func(c *embedderConfig) { c.device = d }
}

// WithModelName sets the identifier reported by Model.
func WithModelName(name string) EmbedderOption {
	return func(c *embedderConfig) { c.name = name }
}

func NewLocalEmbedder(modelPath string, dimension int, opts ...EmbedderOption) (*LocalEmbedder, error) {
	cfg := embedderConfig{name: modelPath}
	for _, o := range opts {
		o(&cfg)
	}

	errs := gollama.NewErrorHandler(cfg.logger != nil)
	if cfg.logger != nil {
		logger := cfg.logger
		errs.SetLogCallback(func(level int, message string) {
			logger.Debug(message, zap.Int("llama_level", level))
		})
	}

	if err := gollama.Backend_init(); err != nil {
		return nil, fmt.Errorf("init llama.cpp backend: %w: %w", ErrCollaboratorUnavailable, errs.HandleError(err, "backend init"))
	}

	var model gollama.LlamaModel
	var ctx gollama.LlamaContext
	var success atomic.Bool

	defer func() {
		if success.Load() {
			return
		}
		if ctx != 0 {
			gollama.Free(ctx)
		}
		if model != 0 {
			gollama.Model_free(model)
		}
		gollama.Backend_free()
	}()

	device := SelectDevice(cfg.device)

	modelParams := gollama.Model_default_params()
	switch device {
	case DeviceMPS, DeviceCUDA:
		modelParams.NGpuLayers = 99
	default:
		modelParams.NGpuLayers = 0
	}

	var err error
	model, err = gollama.Model_load_from_file(modelPath, modelParams)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", errs.HandleError(err, "load model"))
	}

	actualDim := int(gollama.Model_n_embd(model))
	if dimension > 0 && dimension != actualDim {
		return nil, fmt.Errorf("%w: model has %d, requested %d", ErrDimensionMismatch, actualDim, dimension)
	}
	if dimension == 0 {
		dimension = actualDim
	}

	ctxParams := gollama.Context_default_params()
	ctxParams.Embeddings = 1
	ctxParams.NCtx = maxEmbedTokens
	ctxParams.NBatch = maxEmbedTokens
	ctxParams.NUbatch = maxEmbedTokens
	// Per-token outputs; pooling happens in meanPool.
	ctxParams.PoolingType = gollama.LLAMA_POOLING_TYPE_NONE

	ctx, err = gollama.Init_from_model(model, ctxParams)
	if err != nil {
		return nil, fmt.Errorf("init context: %w", errs.HandleError(err, "init context"))
	}

	gollama.Set_embeddings(ctx, true)
	success.Store(true)

	return &LocalEmbedder{
		model:     model,
		ctx:       ctx,
		dimension: dimension,
		device:    device,
		name:      cfg.name,
		errs:      errs,
	}, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens, err := gollama.Tokenize(e.model, text, true, false)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	if len(tokens) == 0 {
		return make([]float32, e.dimension), nil
	}
	// Chunks longer than the context window are embedded by their prefix.
	if len(tokens) > maxEmbedTokens {
		tokens = tokens[:maxEmbedTokens]
	}

	gollama.Memory_clear(e.ctx, false)

	nTokens := int32(len(tokens))
	batch := gollama.Batch_init(nTokens, 0, 1)
	defer gollama.Batch_free(batch)
	// gollama.cpp v0.1.0 only allocates batches on darwin.
	if batch.Token == nil {
		return nil, fmt.Errorf("%w: llama.cpp batches are not supported on this platform; use the openai backend", ErrCollaboratorUnavailable)
	}

	tokenSlice := unsafe.Slice(batch.Token, nTokens)
	posSlice := unsafe.Slice(batch.Pos, nTokens)
	nSeqSlice := unsafe.Slice(batch.NSeqId, nTokens)
	seqIdSlice := unsafe.Slice(batch.SeqId, nTokens)
	logitsSlice := unsafe.Slice(batch.Logits, nTokens)

	for i := int32(0); i < nTokens; i++ {
		tokenSlice[i] = tokens[i]
		posSlice[i] = gollama.LlamaPos(i)
		nSeqSlice[i] = 1
		*seqIdSlice[i] = 0
		logitsSlice[i] = 1
	}
	batch.NTokens = nTokens

	if err := gollama.Decode(e.ctx, batch); err != nil {
		return nil, fmt.Errorf("decode: %w", e.errs.HandleError(err, "decode"))
	}

	pooled, err := meanPool(nTokens, e.dimension, func(i int32) *float32 {
		return gollama.Get_embeddings_ith(e.ctx, i)
	})
	if err != nil {
		return nil, err
	}
	return l2Normalize(pooled), nil
}

// meanPool averages the dim-sized token vectors returned by tokenAt for
// tokens 0..n-1.
func meanPool(n int32, dim int, tokenAt func(int32) *float32) ([]float32, error) {
	sum := make([]float64, dim)
	for i := int32(0); i < n; i++ {
		ptr := tokenAt(i)
		if ptr == nil {
			return nil, fmt.Errorf("no embedding for token %d", i)
		}
		for j, v := range unsafe.Slice(ptr, dim) {
			sum[j] += float64(v)
		}
	}

	out := make([]float32, dim)
	if n == 0 {
		return out, nil
	}
	for j, v := range sum {
		out[j] = float32(v / float64(n))
	}
	return out, nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = emb
	}

	return results, nil
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) Model() string {
	return e.name
}

func (e *LocalEmbedder) Device() string {
	return string(e.device)
}

func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	gollama.Free(e.ctx)
	gollama.Model_free(e.model)
	gollama.Backend_free()

	return nil
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}

	return result
}
