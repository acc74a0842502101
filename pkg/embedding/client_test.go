package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-rag-go/internal/config"
	"doc-rag-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

type embedPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// okBackend 返回一个对每个输入都给出向量的后端。
func okBackend(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for i := range req.Input {
			resp.Data = append(resp.Data, item{Index: i, Embedding: []float32{1, 2, 3}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newProvider(baseURL string) *Provider {
	return NewProvider(config.EmbeddingConfig{BaseURL: baseURL, Model: "test-model"})
}

func TestEmbedSuccess(t *testing.T) {
	srv := okBackend(t)
	defer srv.Close()

	p := newProvider(srv.URL)
	vec, err := p.Embed(context.Background(), "你好")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.False(t, p.Degraded())
}

func TestEmbedBatchPartialFailure(t *testing.T) {
	// 后端只对部分条目返回向量, 缺失的条目应为 nil 而不是整体失败
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		calls.Add(1)

		// 探测调用与正式调用都只回第 0 条
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	p := newProvider(srv.URL)
	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, []float32{0.5}, vectors[0])
	assert.Nil(t, vectors[1])
	assert.Nil(t, vectors[2])
}

func TestProbeFailureThenRecovery(t *testing.T) {
	var embedCalls, loadCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models/load":
			loadCalls.Add(1)
			w.WriteHeader(http.StatusOK)
		case "/embeddings":
			// 第一次探测失败, 恢复动作之后成功
			if embedCalls.Add(1) == 1 {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
				return
			}
			_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := newProvider(srv.URL)
	vec, err := p.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.False(t, p.Degraded())
	assert.Equal(t, int32(1), loadCalls.Load(), "恢复动作只执行一次")
}

func TestPermanentFallbackAfterFailedRecovery(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newProvider(srv.URL)
	_, err := p.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, p.Degraded())

	// 降级是永久的: 后续调用立即失败, 不再访问后端
	before := calls.Load()
	_, err = p.Embed(context.Background(), "again")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, before, calls.Load(), "降级模式下不应再调用后端")
}

func TestEmptyBatch(t *testing.T) {
	p := newProvider("http://127.0.0.1:0")
	vectors, err := p.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
