package latex

import (
	"sort"
	"strings"

	"texResume/internal/resume"
)

// Stats 记录一次渲染中使用与跳过的块数量，供调用方上报指标。
type Stats struct {
	Rendered int
	Skipped  int
}

// Renderer 使用固定模板把块序列组装为完整的 .tex 文档。
// Renderer 不持有可变状态，可并发调用。
type Renderer struct {
	tmpl Template
}

// NewRenderer 构造 Renderer。
func NewRenderer(tmpl Template) *Renderer {
	return &Renderer{tmpl: tmpl}
}

var defaultRenderer = NewRenderer(DefaultTemplate())

// RenderDocument 使用内置模板渲染文档。
func RenderDocument(blocks []resume.Block) string {
	return defaultRenderer.Render(blocks)
}

// Render 返回完整文档文本，相同输入总是得到逐字节相同的输出。
func (r *Renderer) Render(blocks []resume.Block) string {
	doc, _ := r.RenderWithStats(blocks)
	return doc
}

type group struct {
	kind    resume.SectionKind
	members []resume.Block
}

// RenderWithStats 与 Render 相同，另外返回使用与跳过的块数量。
//
// 规则：
//   - 缺少类型的块在分组前被过滤，不影响其他块；
//   - 只使用输入中的第一个 Header 块，其余 Header 被忽略；
//   - 其他块按类型首次出现的顺序分组，组内按 Order 稳定排序。
func (r *Renderer) RenderWithStats(blocks []resume.Block) (string, Stats) {
	var stats Stats
	var header *resume.Block
	var groups []*group
	index := make(map[resume.SectionKind]*group)

	for i := range blocks {
		b := blocks[i]
		if b.Kind == "" {
			stats.Skipped++
			continue
		}
		if b.Kind == resume.KindHeader {
			if header != nil {
				stats.Skipped++
				continue
			}
			header = &b
			continue
		}
		g, ok := index[b.Kind]
		if !ok {
			g = &group{kind: b.Kind}
			index[b.Kind] = g
			groups = append(groups, g)
		}
		g.members = append(g.members, b)
	}

	var sb strings.Builder
	sb.WriteString(r.tmpl.Preamble)
	sb.WriteString("\n")

	if header != nil {
		writeBlock(&sb, *header)
		stats.Rendered++
	}

	for _, g := range groups {
		sort.SliceStable(g.members, func(i, j int) bool {
			return g.members[i].Order < g.members[j].Order
		})
		sb.WriteString(sectionHeading(g.kind))
		for _, b := range g.members {
			writeBlock(&sb, b)
			stats.Rendered++
		}
		sb.WriteString(sectionClose)
	}

	sb.WriteString("\n")
	sb.WriteString(r.tmpl.Postamble)
	return sb.String(), stats
}
