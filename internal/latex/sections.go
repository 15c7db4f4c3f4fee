package latex

import (
	"strings"
	"text/template"

	"texResume/internal/resume"
)

// 片段模板使用 [[ ]] 作为分隔符，避免与 LaTeX 的花括号冲突。
// 所有文本值都必须经过 tex 函数。
const (
	headerFragment = `\begin{center}
  \textbf{\Huge \scshape [[tex .FullName]]} \\ \vspace{1pt}
  \small [[tex .Phone]] $|$
  \href{mailto:[[tex .Email]]}{\underline{[[tex .Email]]}} $|$
  \href{[[tex .LinkedIn]]}{\underline{[[tex .LinkedIn]]}} $|$
  \href{[[tex .GitHub]]}{\underline{[[tex .GitHub]]}}
\end{center}

`

	educationFragment = `  \resumeSubheading
    {[[tex .Institution]]}{[[tex .Location]]}
    {[[tex .Degree]]}{[[tex .Duration]]}
  \begin{itemize}[leftmargin=0in, label={}]
    \small{
      \item \textbf{Relevant Courses}: [[tex .Courses]] \\
      \item \textbf{Activities}: [[tex .Activities]]
    }\vspace*{-6pt}
  \end{itemize}

`

	experienceFragment = `  \resumeSubheading
    {[[tex .Organization]]}{[[tex .Duration]]}
    {[[tex .Role]]}{[[tex .Location]]}
  \resumeItemListStart
[[range .Bullets]]    \resumeItem{[[tex .]]}
[[end]]  \resumeItemListEnd

`

	projectsFragment = `  \resumeSubheading
    {[[tex .Name]]}{[[tex .Duration]]}
    {[[tex .Technologies]]}{[[tex .Location]]}
  \resumeItemListStart
[[range .Bullets]]    \resumeItem{[[tex .]]}
[[end]]  \resumeItemListEnd

`

	skillsFragment = `  \begin{itemize}[leftmargin=0in, label={}]
    \small{
      \item \textbf{Languages}: [[tex .Languages]] \\
      \item \textbf{Other}: [[tex .Other]]
    }
  \end{itemize}

`

	fallbackFragment = `  \resumeSubheading
    {[[tex .Title]]}{[[tex .Duration]]}
    {}{[[tex .Location]]}
  \resumeItemListStart
    \resumeItem{(No special fields for this section.)}
  \resumeItemListEnd

`
)

var funcs = template.FuncMap{"tex": Escape}

func mustFragment(name, text string) *template.Template {
	return template.Must(template.New(name).Delims("[[", "]]").Funcs(funcs).Parse(text))
}

var (
	fragments = map[resume.SectionKind]*template.Template{
		resume.KindHeader:          mustFragment("header", headerFragment),
		resume.KindEducation:       mustFragment("education", educationFragment),
		resume.KindExperience:      mustFragment("experience", experienceFragment),
		resume.KindProjects:        mustFragment("projects", projectsFragment),
		resume.KindTechnicalSkills: mustFragment("skills", skillsFragment),
	}
	fallback = mustFragment("fallback", fallbackFragment)
)

type fallbackData struct {
	Title    string
	Duration string
	Location string
}

// fieldsFor 返回与 kind 对应的字段变体；块上缺失或类型不符时使用空变体。
func fieldsFor(b resume.Block) any {
	if b.Fields != nil && b.Fields.Kind() == b.Kind {
		return b.Fields
	}
	empty, err := resume.NewFields(b.Kind)
	if err != nil {
		return nil
	}
	return empty
}

// RenderBlock 把单个块渲染为 LaTeX 片段，完全由块的类型决定格式。
// 没有对应格式的类型渲染为只含标题、时间、地点与占位条目的片段，不会 panic。
func RenderBlock(b resume.Block) string {
	var sb strings.Builder
	writeBlock(&sb, b)
	return sb.String()
}

func writeBlock(sb *strings.Builder, b resume.Block) {
	if tmpl, ok := fragments[b.Kind]; ok {
		if data := fieldsFor(b); data != nil {
			var frag strings.Builder
			if err := tmpl.Execute(&frag, data); err == nil {
				sb.WriteString(frag.String())
				return
			}
		}
	}
	var frag strings.Builder
	data := fallbackData{Title: b.Title(), Duration: b.Duration(), Location: b.Location()}
	if err := fallback.Execute(&frag, data); err != nil {
		return
	}
	sb.WriteString(frag.String())
}

// sectionHeading 返回分组标题与子列表开始标记。
func sectionHeading(kind resume.SectionKind) string {
	return `\section{` + Escape(string(kind)) + "}\n" + `\resumeSubHeadingListStart` + "\n"
}

const sectionClose = `\resumeSubHeadingListEnd` + "\n"
