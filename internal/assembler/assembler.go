// Package assembler 将排序后的片段贪心组装为一个受预算约束的上下文块，
// 供下游推理组件消费。
package assembler

import (
	"strings"
	"unicode"

	"doc-rag-go/internal/model"
)

// Assembler 按排序顺序组装上下文。
type Assembler struct {
	defaultBudget int
}

// New 创建一个新的 Assembler 实例。
func New(defaultBudget int) *Assembler {
	if defaultBudget <= 0 {
		defaultBudget = 4000
	}
	return &Assembler{defaultBudget: defaultBudget}
}

// Assemble 按排名顺序贪心追加片段，每段标注来源文件名。
// 放不下的片段被跳过（而不是截断），继续尝试后面的片段；
// 所有片段都放不下时，把排名最高的片段在句子边界截断作为最后手段。
func (a *Assembler) Assemble(results []model.SearchResult, budget int) string {
	if budget <= 0 {
		budget = a.defaultBudget
	}
	if len(results) == 0 {
		return ""
	}

	var sb strings.Builder
	used := 0
	appended := 0

	for _, r := range results {
		entry := formatEntry(r)
		if used+len([]rune(entry)) > budget {
			continue // 跳过而非截断，后面更短的片段可能放得下
		}
		sb.WriteString(entry)
		used += len([]rune(entry))
		appended++
	}

	if appended > 0 {
		return strings.TrimRight(sb.String(), "\n")
	}

	// 没有任何完整片段放得下：截断排名最高的片段到最近的句子边界
	top := results[0]
	entry := formatEntry(top)
	runes := []rune(entry)
	if len(runes) <= budget {
		return strings.TrimRight(entry, "\n")
	}
	return strings.TrimRight(truncateAtSentence(string(runes[:budget])), "\n")
}

// formatEntry 将一条检索结果格式化为带来源标注的上下文段。
func formatEntry(r model.SearchResult) string {
	return "[" + r.FileName + "]\n" + r.Text + "\n\n"
}

// 句子结束符集合，中英文标点都算。
var sentenceEnders = map[rune]struct{}{
	'.': {}, '!': {}, '?': {}, '。': {}, '！': {}, '？': {}, '；': {}, ';': {},
}

// truncateAtSentence 将文本截断到最近的句子边界；
// 找不到句子边界时退回到词边界，绝不在词中间截断。
func truncateAtSentence(text string) string {
	runes := []rune(text)
	for i := len(runes) - 1; i >= 0; i-- {
		if _, ok := sentenceEnders[runes[i]]; ok {
			return string(runes[:i+1])
		}
	}
	// 退回词边界
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimRight(string(runes[:i]), " \t\n")
		}
	}
	return text
}
