package assembler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-rag-go/internal/model"
)

func result(name, text string, rel float64) model.SearchResult {
	return model.SearchResult{DocumentID: name, FileName: name, Text: text, Relevance: rel}
}

func TestGreedySkipNotTruncate(t *testing.T) {
	a := New(0)
	results := []model.SearchResult{
		result("a", strings.Repeat("A", 500), 0.9),
		result("b", strings.Repeat("B", 2000), 0.7),
		result("c", strings.Repeat("C", 100), 0.5),
	}

	// 预算覆盖 A 与 C 的完整条目（含来源标注）, 但放不下 B
	budget := len([]rune("[a]\n")) + 500 + 2 + len([]rune("[c]\n")) + 100 + 2
	out := a.Assemble(results, budget)

	assert.Contains(t, out, strings.Repeat("A", 500))
	assert.Contains(t, out, strings.Repeat("C", 100))
	assert.NotContains(t, out, "B", "放不下的片段必须被跳过, 而不是截断")

	// A 在 C 之前（按排名顺序）
	assert.Less(t, strings.Index(out, "AAA"), strings.Index(out, "CCC"))
}

func TestSourceLabels(t *testing.T) {
	a := New(0)
	out := a.Assemble([]model.SearchResult{
		result("物理讲义.pdf", "牛顿第一定律。", 0.9),
		result("notes.txt", "Second chunk.", 0.8),
	}, 1000)

	assert.Contains(t, out, "[物理讲义.pdf]\n牛顿第一定律。")
	assert.Contains(t, out, "[notes.txt]\nSecond chunk.")
}

func TestNothingFitsTruncatesAtSentenceBoundary(t *testing.T) {
	a := New(0)
	text := "First sentence is here. Second sentence follows! Third one never fits at all."
	results := []model.SearchResult{result("doc.txt", text, 0.9)}

	out := a.Assemble(results, len("[doc.txt]\n")+len("First sentence is here. Second sentence follows!")+5)
	require.NotEmpty(t, out)
	assert.True(t, strings.HasSuffix(out, "!") || strings.HasSuffix(out, "."),
		"最后手段的截断必须落在句子边界: %q", out)
	assert.NotContains(t, out, "Third")
}

func TestNothingFitsFallsBackToWordBoundary(t *testing.T) {
	a := New(0)
	text := "no sentence punctuation just a very long run of words that keeps going on"
	results := []model.SearchResult{result("doc.txt", text, 0.9)}

	out := a.Assemble(results, len("[doc.txt]\n")+30)
	require.NotEmpty(t, out)
	// 绝不在词中间截断
	last := out[strings.LastIndexByte(out, ' ')+1:]
	assert.Contains(t, text, last)
	words := strings.Fields(text)
	assert.Contains(t, words, last)
}

func TestEmptyResults(t *testing.T) {
	a := New(0)
	assert.Equal(t, "", a.Assemble(nil, 100))
}

func TestDefaultBudget(t *testing.T) {
	a := New(50)
	out := a.Assemble([]model.SearchResult{
		result("a.txt", strings.Repeat("x", 30), 0.9),
		result("b.txt", strings.Repeat("y", 30), 0.8),
	}, 0)

	// 预算 50 只放得下第一个条目
	assert.Contains(t, out, strings.Repeat("x", 30))
	assert.NotContains(t, out, "y")
}
