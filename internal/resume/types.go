package resume

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SectionKind 标识简历块的类型，决定块携带哪些字段。
type SectionKind string

const (
	KindHeader          SectionKind = "Header"
	KindEducation       SectionKind = "Education"
	KindExperience      SectionKind = "Experience"
	KindProjects        SectionKind = "Projects"
	KindTechnicalSkills SectionKind = "Technical Skills"
)

// Kinds 按库模板的展示顺序列出全部块类型。
var Kinds = []SectionKind{
	KindHeader,
	KindEducation,
	KindExperience,
	KindProjects,
	KindTechnicalSkills,
}

// ParseSectionKind 将客户端传入的类型名规范化，大小写不敏感。
func ParseSectionKind(raw string) (SectionKind, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: section kind is required", ErrMalformedBlock)
	}
	for _, k := range Kinds {
		if strings.EqualFold(string(k), trimmed) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSectionKind, raw)
}

// Valid 判断类型是否属于封闭枚举。
func (k SectionKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Block 是简历内容的最小单元。
// ClientID 由前端分配，StorageID 在首次持久化时由服务端分配且之后不再变化。
type Block struct {
	ClientID  string
	StorageID string
	Kind      SectionKind
	Order     int
	Fields    Fields
}

// Fields 是按 SectionKind 区分的字段集合，仅本包内的类型可以实现。
type Fields interface {
	Kind() SectionKind
	sealed()
}

// HeaderFields 对应 Header 块。
type HeaderFields struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	GitHub   string `json:"github"`
	LinkedIn string `json:"linkedin"`
}

// EducationFields 对应 Education 块。
type EducationFields struct {
	Institution string `json:"institution"`
	Location    string `json:"location"`
	Duration    string `json:"duration"`
	Degree      string `json:"degree"`
	Courses     string `json:"relevant_courses"`
	Activities  string `json:"activities"`
}

// ExperienceFields 对应 Experience 块。
type ExperienceFields struct {
	Organization string   `json:"organization"`
	Location     string   `json:"location"`
	Duration     string   `json:"duration"`
	Role         string   `json:"role"`
	Bullets      []string `json:"bullets"`
}

// ProjectsFields 对应 Projects 块。
type ProjectsFields struct {
	Name         string   `json:"project_name"`
	Technologies string   `json:"technologies"`
	Duration     string   `json:"duration"`
	Location     string   `json:"location"`
	Bullets      []string `json:"bullets"`
}

// SkillsFields 对应 Technical Skills 块。
type SkillsFields struct {
	Languages string `json:"languages"`
	Other     string `json:"other"`
}

func (HeaderFields) Kind() SectionKind     { return KindHeader }
func (EducationFields) Kind() SectionKind  { return KindEducation }
func (ExperienceFields) Kind() SectionKind { return KindExperience }
func (ProjectsFields) Kind() SectionKind   { return KindProjects }
func (SkillsFields) Kind() SectionKind     { return KindTechnicalSkills }

func (HeaderFields) sealed()     {}
func (EducationFields) sealed()  {}
func (ExperienceFields) sealed() {}
func (ProjectsFields) sealed()   {}
func (SkillsFields) sealed()     {}

// NewFields 返回指定类型的空字段集合。
func NewFields(kind SectionKind) (Fields, error) {
	switch kind {
	case KindHeader:
		return HeaderFields{}, nil
	case KindEducation:
		return EducationFields{}, nil
	case KindExperience:
		return ExperienceFields{Bullets: []string{}}, nil
	case KindProjects:
		return ProjectsFields{Bullets: []string{}}, nil
	case KindTechnicalSkills:
		return SkillsFields{}, nil
	case "":
		return nil, fmt.Errorf("%w: section kind is required", ErrMalformedBlock)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSectionKind, kind)
	}
}

// NewBlock 构造一个字段为空的新块。
func NewBlock(clientID string, kind SectionKind, order int) (Block, error) {
	fields, err := NewFields(kind)
	if err != nil {
		return Block{}, err
	}
	return Block{ClientID: clientID, Kind: kind, Order: order, Fields: fields}, nil
}

// Validate 检查块的结构完整性，不校验字段内容本身。
func (b Block) Validate() error {
	if b.Kind == "" {
		return fmt.Errorf("%w: section kind is required", ErrMalformedBlock)
	}
	if !b.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSectionKind, b.Kind)
	}
	if strings.TrimSpace(b.ClientID) == "" {
		return fmt.Errorf("%w: client id is required", ErrMalformedBlock)
	}
	if b.Fields != nil && b.Fields.Kind() != b.Kind {
		return fmt.Errorf("%w: fields of kind %q on %q block", ErrMalformedBlock, b.Fields.Kind(), b.Kind)
	}
	return nil
}

// Title 返回块的标题类字段；Technical Skills 没有标题。
func (b Block) Title() string {
	switch f := b.Fields.(type) {
	case HeaderFields:
		return f.FullName
	case EducationFields:
		return f.Institution
	case ExperienceFields:
		return f.Organization
	case ProjectsFields:
		return f.Name
	default:
		return ""
	}
}

// Duration 返回块的时间段字段，没有则为空。
func (b Block) Duration() string {
	switch f := b.Fields.(type) {
	case EducationFields:
		return f.Duration
	case ExperienceFields:
		return f.Duration
	case ProjectsFields:
		return f.Duration
	default:
		return ""
	}
}

// Location 返回块的地点字段，没有则为空。
func (b Block) Location() string {
	switch f := b.Fields.(type) {
	case EducationFields:
		return f.Location
	case ExperienceFields:
		return f.Location
	case ProjectsFields:
		return f.Location
	default:
		return ""
	}
}

// blockJSON 是块在 API 与 Redis 消息中的线上格式。
type blockJSON struct {
	ClientID  string          `json:"client_id"`
	StorageID string          `json:"storage_id,omitempty"`
	Kind      string          `json:"section_kind"`
	Order     int             `json:"order"`
	Fields    json.RawMessage `json:"fields,omitempty"`
}

// MarshalJSON 输出 {client_id, storage_id, section_kind, order, fields}。
func (b Block) MarshalJSON() ([]byte, error) {
	wire := blockJSON{
		ClientID:  b.ClientID,
		StorageID: b.StorageID,
		Kind:      string(b.Kind),
		Order:     b.Order,
	}
	if b.Fields != nil {
		raw, err := json.Marshal(b.Fields)
		if err != nil {
			return nil, fmt.Errorf("marshal fields: %w", err)
		}
		wire.Fields = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON 依据 section_kind 解码对应的字段变体，未知字段会被拒绝。
func (b *Block) UnmarshalJSON(data []byte) error {
	var wire blockJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	kind, err := ParseSectionKind(wire.Kind)
	if err != nil {
		return err
	}
	fields, err := DecodeFields(kind, wire.Fields)
	if err != nil {
		return err
	}
	*b = Block{
		ClientID:  wire.ClientID,
		StorageID: wire.StorageID,
		Kind:      kind,
		Order:     wire.Order,
		Fields:    fields,
	}
	return nil
}

// DecodeFields 将 JSON 对象解码为 kind 对应的字段变体。
// 空输入返回空字段集合；出现该类型不适用的字段时返回 ErrMalformedBlock。
func DecodeFields(kind SectionKind, raw json.RawMessage) (Fields, error) {
	base, err := NewFields(kind)
	if err != nil {
		return nil, err
	}
	patch, err := decodePatch(raw)
	if err != nil {
		return nil, err
	}
	return patch.Apply(base)
}
