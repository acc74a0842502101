package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-rag-go/internal/config"
	"doc-rag-go/internal/model"
	"doc-rag-go/pkg/log"
	"doc-rag-go/pkg/tika"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestDetectByExtension(t *testing.T) {
	cases := []struct {
		fileName string
		want     Strategy
	}{
		{"notes.txt", StrategyPlainText},
		{"README.md", StrategyPlainText},
		{"data.CSV", StrategyPlainText},
		{"paper.pdf", StrategyPDF},
		{"scan.PNG", StrategyOCR},
		{"photo.jpeg", StrategyOCR},
	}
	for _, tc := range cases {
		got, err := Detect(tc.fileName, "")
		require.NoError(t, err, tc.fileName)
		assert.Equal(t, tc.want, got, tc.fileName)
	}
}

func TestDetectBySniffing(t *testing.T) {
	// 扩展名未知时回退到内容嗅探
	pdfPath := writeFile(t, "mystery.bin", []byte("%PDF-1.7\n%%EOF\n"))
	got, err := Detect("mystery.bin", pdfPath)
	require.NoError(t, err)
	assert.Equal(t, StrategyPDF, got)

	textPath := writeFile(t, "mystery2.bin", []byte("just some plain text content here\n"))
	got, err = Detect("mystery2.bin", textPath)
	require.NoError(t, err)
	assert.Equal(t, StrategyPlainText, got)
}

func TestDetectUnsupportedType(t *testing.T) {
	binPath := writeFile(t, "blob.bin", []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0})
	_, err := Detect("blob.bin", binPath)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrKindValidation))
}

func TestExtractPlainText(t *testing.T) {
	d := NewDispatcher(nil)
	path := writeFile(t, "a.txt", []byte("第一段。\r\n\r\n\r\n\r\nsecond   \n"))

	text, err := d.Extract(context.Background(), StrategyPlainText, path, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "第一段。\n\nsecond", text)
}

func TestExtractEmptyTextIsFailure(t *testing.T) {
	d := NewDispatcher(nil)
	path := writeFile(t, "empty.txt", []byte("   \n\t\n"))

	_, err := d.Extract(context.Background(), StrategyPlainText, path, "empty.txt")
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrKindExtraction),
		"空提取结果必须是可区分的提取失败, 而不是空文档")
}

func TestExtractPDFViaCollaborator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte("extracted pdf text"))
	}))
	defer srv.Close()

	d := NewDispatcher(tika.NewClient(config.TikaConfig{ServerURL: srv.URL}))
	path := writeFile(t, "p.pdf", []byte("%PDF-1.7"))

	text, err := d.Extract(context.Background(), StrategyPDF, path, "p.pdf")
	require.NoError(t, err)
	assert.Equal(t, "extracted pdf text", text)
}

func TestExtractClassifiesCollaboratorErrors(t *testing.T) {
	t.Run("输入不合法", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "unparseable document", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		d := NewDispatcher(tika.NewClient(config.TikaConfig{ServerURL: srv.URL}))
		path := writeFile(t, "bad.pdf", []byte("not really pdf"))

		_, err := d.Extract(context.Background(), StrategyPDF, path, "bad.pdf")
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.ErrKindExtraction))
		assert.ErrorIs(t, err, tika.ErrMalformedInput)
	})

	t.Run("提取器不可用", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		d := NewDispatcher(tika.NewClient(config.TikaConfig{ServerURL: srv.URL}))
		path := writeFile(t, "x.pdf", []byte("%PDF-1.7"))

		_, err := d.Extract(context.Background(), StrategyPDF, path, "x.pdf")
		require.Error(t, err)
		assert.True(t, model.IsKind(err, model.ErrKindExtraction))
		assert.ErrorIs(t, err, tika.ErrBackendUnavailable)
	})
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"CRLF统一", "a\r\nb", "a\nb"},
		{"折叠空行", "a\n\n\n\n\nb", "a\n\nb"},
		{"行尾空白", "a  \nb\t\n", "a\nb"},
		{"首尾空白", "\n\n  body  \n\n", "body"},
		{"非法UTF8", "ok\xff\xfe!", "ok!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}
