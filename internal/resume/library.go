package resume

// Library 返回拖拽面板中可用的空白块模板，每种类型一个。
func Library() []Block {
	ids := map[SectionKind]string{
		KindHeader:          "template-header",
		KindEducation:       "template-education",
		KindExperience:      "template-experience",
		KindProjects:        "template-projects",
		KindTechnicalSkills: "template-skills",
	}
	blocks := make([]Block, 0, len(Kinds))
	for i, kind := range Kinds {
		b, err := NewBlock(ids[kind], kind, i)
		if err != nil {
			// Kinds 中只有合法类型
			panic(err)
		}
		blocks = append(blocks, b)
	}
	return blocks
}
