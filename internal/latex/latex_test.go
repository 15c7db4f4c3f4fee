package latex

import (
	"strings"
	"sync"
	"testing"

	"texResume/internal/resume"
)

func TestEscapeSafeInputUnchanged(t *testing.T) {
	in := "Built a 3-tier service in Go (gRPC, Postgres)."
	if got := Escape(in); got != in {
		t.Fatalf("expected unchanged, got %q", got)
	}
	if got := Escape(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestEscapeEachSpecialCharacter(t *testing.T) {
	cases := map[string]string{
		`\`: `\textbackslash{}`,
		`%`: `\%`,
		`$`: `\$`,
		`#`: `\#`,
		`_`: `\_`,
		`{`: `\{`,
		`}`: `\}`,
		`^`: `\^{}`,
		`~`: `\~{}`,
		`&`: `\&`,
	}
	for in, want := range cases {
		if got := Escape(in); got != want {
			t.Errorf("Escape(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeBackslashNotDoubleEscaped(t *testing.T) {
	got := Escape(`a\b`)
	if got != `a\textbackslash{}b` {
		t.Fatalf("got %q", got)
	}
}

func TestEscapeTwiceKeepsOriginalMapping(t *testing.T) {
	once := Escape("50%")
	twice := Escape(once)
	if once != `50\%` {
		t.Fatalf("once = %q", once)
	}
	if twice != `50\textbackslash{}\%` {
		t.Fatalf("twice = %q", twice)
	}
}

func headerBlock(id, name, email string) resume.Block {
	return resume.Block{
		ClientID: id,
		Kind:     resume.KindHeader,
		Fields:   resume.HeaderFields{FullName: name, Email: email},
	}
}

func experienceBlock(id, org string, order int, bullets ...string) resume.Block {
	return resume.Block{
		ClientID: id,
		Kind:     resume.KindExperience,
		Order:    order,
		Fields: resume.ExperienceFields{
			Organization: org,
			Duration:     "2020-2021",
			Bullets:      bullets,
		},
	}
}

func TestRenderDocumentEndToEnd(t *testing.T) {
	blocks := []resume.Block{
		headerBlock("h1", "Ada Lovelace", "ada@x.com"),
		experienceBlock("e1", "Acme", 0, "Did X"),
	}

	doc := RenderDocument(blocks)
	tmpl := DefaultTemplate()

	if !strings.HasPrefix(doc, tmpl.Preamble) {
		t.Fatalf("document does not start with preamble")
	}
	if !strings.HasSuffix(doc, tmpl.Postamble) {
		t.Fatalf("document does not end with postamble")
	}

	center := strings.Index(doc, `\begin{center}`)
	name := strings.Index(doc, "Ada Lovelace")
	section := strings.Index(doc, `\section{Experience}`)
	item := strings.Index(doc, `\resumeItem{Did X}`)
	if center < 0 || name < center || section < name || item < section {
		t.Fatalf("unexpected structure: center=%d name=%d section=%d item=%d", center, name, section, item)
	}
	if !strings.Contains(doc, `\href{mailto:ada@x.com}{\underline{ada@x.com}}`) {
		t.Fatalf("email fragment missing")
	}
	if n := strings.Count(doc, `\section{`); n != 1 {
		t.Fatalf("expected one section, got %d", n)
	}
	if n := strings.Count(doc, `\resumeItem{`); n != 1 {
		t.Fatalf("expected one item, got %d", n)
	}

	if again := RenderDocument(blocks); again != doc {
		t.Fatalf("second render differs")
	}
}

func TestRenderDocumentFirstHeaderWins(t *testing.T) {
	doc := RenderDocument([]resume.Block{
		headerBlock("h1", "First Person", "first@x.com"),
		headerBlock("h2", "Second Person", "second@x.com"),
	})
	if !strings.Contains(doc, "First Person") {
		t.Fatalf("first header missing")
	}
	if strings.Contains(doc, "Second Person") || strings.Contains(doc, "second@x.com") {
		t.Fatalf("second header leaked into output")
	}
	if n := strings.Count(doc, `\begin{center}`); n != 1 {
		t.Fatalf("expected one header fragment, got %d", n)
	}
}

func TestRenderDocumentGroupsByFirstAppearance(t *testing.T) {
	blocks := []resume.Block{
		{ClientID: "p1", Kind: resume.KindProjects, Fields: resume.ProjectsFields{Name: "Compiler"}},
		experienceBlock("e1", "Acme", 0),
		{ClientID: "p2", Kind: resume.KindProjects, Fields: resume.ProjectsFields{Name: "Kernel"}},
	}
	doc := RenderDocument(blocks)

	projects := strings.Index(doc, `\section{Projects}`)
	experience := strings.Index(doc, `\section{Experience}`)
	if projects < 0 || experience < 0 || projects > experience {
		t.Fatalf("expected Projects before Experience: %d %d", projects, experience)
	}
	if n := strings.Count(doc, `\section{Projects}`); n != 1 {
		t.Fatalf("expected projects grouped once, got %d", n)
	}
	compiler := strings.Index(doc, "Compiler")
	kernel := strings.Index(doc, "Kernel")
	if compiler > kernel || kernel > experience {
		t.Fatalf("project members out of place")
	}
}

func TestRenderDocumentSortsGroupMembersByOrderStably(t *testing.T) {
	blocks := []resume.Block{
		experienceBlock("e1", "Third", 5),
		experienceBlock("e2", "First", 1),
		experienceBlock("e3", "Fourth", 5),
		experienceBlock("e4", "Second", 2),
	}
	doc := RenderDocument(blocks)
	last := -1
	for _, name := range []string{"First", "Second", "Third", "Fourth"} {
		idx := strings.Index(doc, "{"+name+"}")
		if idx < last {
			t.Fatalf("%s rendered out of order", name)
		}
		last = idx
	}
}

func TestRenderDocumentSkipsMalformedBlocks(t *testing.T) {
	doc, stats := NewRenderer(DefaultTemplate()).RenderWithStats([]resume.Block{
		{ClientID: "broken"},
		experienceBlock("e1", "Acme", 0, "Shipped"),
	})
	if stats.Skipped != 1 || stats.Rendered != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if !strings.Contains(doc, `\resumeItem{Shipped}`) {
		t.Fatalf("valid block not rendered")
	}
}

func TestRenderBlockKeepsEmptyBullets(t *testing.T) {
	out := RenderBlock(experienceBlock("e1", "Acme", 0, "one", "", "three"))
	if n := strings.Count(out, `\resumeItem{`); n != 3 {
		t.Fatalf("expected 3 items, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, `\resumeItem{}`) {
		t.Fatalf("empty bullet dropped")
	}
}

func TestRenderBlockEscapesEveryField(t *testing.T) {
	out := RenderBlock(resume.Block{
		ClientID: "s1",
		Kind:     resume.KindTechnicalSkills,
		Fields:   resume.SkillsFields{Languages: "C#, F#", Other: "R&D_tools"},
	})
	if !strings.Contains(out, `C\#, F\#`) || !strings.Contains(out, `R\&D\_tools`) {
		t.Fatalf("fields not escaped:\n%s", out)
	}
}

func TestRenderBlockUnknownKindFallsBack(t *testing.T) {
	out := RenderBlock(resume.Block{ClientID: "x", Kind: resume.SectionKind("Awards")})
	if !strings.Contains(out, "(No special fields for this section.)") {
		t.Fatalf("fallback placeholder missing:\n%s", out)
	}
}

func TestRenderBlockMissingFieldsUsesEmptyVariant(t *testing.T) {
	out := RenderBlock(resume.Block{ClientID: "e", Kind: resume.KindEducation})
	if !strings.Contains(out, `\textbf{Relevant Courses}`) {
		t.Fatalf("education fragment not used:\n%s", out)
	}
}

func TestRenderDocumentConcurrent(t *testing.T) {
	blocks := []resume.Block{
		headerBlock("h1", "Ada", "a@x.com"),
		experienceBlock("e1", "Acme", 0, "Did X"),
	}
	want := RenderDocument(blocks)

	var wg sync.WaitGroup
	errs := make(chan string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := RenderDocument(blocks); got != want {
				errs <- got
			}
		}()
	}
	wg.Wait()
	close(errs)
	for range errs {
		t.Fatalf("concurrent render produced different output")
	}
}

func TestLoadTemplateDefaults(t *testing.T) {
	tmpl, err := LoadTemplate("", "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tmpl != DefaultTemplate() {
		t.Fatalf("expected default template")
	}
	if _, err := LoadTemplate(t.TempDir()+"/missing.tex", ""); err == nil {
		t.Fatalf("expected error for missing preamble")
	}
}
