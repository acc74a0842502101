package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-rag-go/internal/model"
	"doc-rag-go/pkg/log"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubDocumentService 只为处理器测试提供固定返回值。
type stubDocumentService struct {
	downloadName string
	downloadBody string
}

func (s *stubDocumentService) Upload(ctx context.Context, fileName string, r io.Reader, tags []string, embeddingsEnabled bool) (*model.UploadResult, error) {
	return nil, model.NewError(model.ErrKindInternal, "not implemented")
}

func (s *stubDocumentService) List() ([]model.DocumentSummary, model.IndexStats) {
	return nil, model.IndexStats{}
}

func (s *stubDocumentService) Get(id string) (*model.Document, string, error) {
	return nil, "", model.NewError(model.ErrKindNotFound, "not implemented")
}

func (s *stubDocumentService) Download(id string) (io.ReadCloser, string, int64, error) {
	return io.NopCloser(strings.NewReader(s.downloadBody)), s.downloadName, int64(len(s.downloadBody)), nil
}

func (s *stubDocumentService) Delete(id string) (string, error) { return "", nil }

func (s *stubDocumentService) UpdateTags(id string, tags []string) error { return nil }

func (s *stubDocumentService) Sweep() (int, error) { return 0, nil }

func TestDownloadHeaderEscapesFileName(t *testing.T) {
	// 文件名里的引号必须被合法编码, 不能拼出畸形的 Content-Disposition
	svc := &stubDocumentService{downloadName: `quoted "报告".txt`, downloadBody: "payload"}
	h := NewDocumentHandler(svc)

	r := gin.New()
	r.GET("/documents/:id/download", h.Download)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/documents/abc/download", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payload", w.Body.String())

	disposition, params, err := mime.ParseMediaType(w.Header().Get("Content-Disposition"))
	require.NoError(t, err, "响应头必须是合法的 media type")
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, `quoted "报告".txt`, params["filename"])
}
