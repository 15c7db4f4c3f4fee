package latex

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed preamble.tex
var defaultPreamble string

//go:embed postamble.tex
var defaultPostamble string

// Template 是文档固定的导言与结尾，进程启动时加载一次，之后只读。
type Template struct {
	Preamble  string
	Postamble string
}

// DefaultTemplate 返回内置的单栏简历模板。
func DefaultTemplate() Template {
	return Template{Preamble: defaultPreamble, Postamble: defaultPostamble}
}

// LoadTemplate 从文件读取导言与结尾；路径为空的部分使用内置模板。
func LoadTemplate(preamblePath, postamblePath string) (Template, error) {
	tmpl := DefaultTemplate()
	if p := strings.TrimSpace(preamblePath); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return Template{}, fmt.Errorf("read preamble %q: %w", p, err)
		}
		tmpl.Preamble = string(data)
	}
	if p := strings.TrimSpace(postamblePath); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return Template{}, fmt.Errorf("read postamble %q: %w", p, err)
		}
		tmpl.Postamble = string(data)
	}
	if !strings.Contains(tmpl.Preamble, `\begin{document}`) {
		return Template{}, fmt.Errorf("preamble must contain \\begin{document}")
	}
	if !strings.Contains(tmpl.Postamble, `\end{document}`) {
		return Template{}, fmt.Errorf("postamble must contain \\end{document}")
	}
	return tmpl, nil
}
