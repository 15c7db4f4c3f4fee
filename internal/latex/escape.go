package latex

import "strings"

// texReplacer 单趟扫描完成替换，替换结果中的 \ { } 不会被再次转义。
var texReplacer = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
	`{`, `\{`,
	`}`, `\}`,
	`^`, `\^{}`,
	`~`, `\~{}`,
	`&`, `\&`,
)

// Escape 将任意文本转换为可安全放入 LaTeX 正文的文本。空字符串返回空字符串。
func Escape(s string) string {
	if s == "" {
		return ""
	}
	return texReplacer.Replace(s)
}
