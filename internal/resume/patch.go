package resume

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FieldPatch 描述一次字段级合并：出现的键覆盖原值，未出现的键保持不变。
type FieldPatch map[string]json.RawMessage

// fieldKeys 列出每种类型允许的字段键，与各变体的 json tag 保持一致。
var fieldKeys = map[SectionKind]map[string]struct{}{
	KindHeader:          keySet("full_name", "phone", "email", "github", "linkedin"),
	KindEducation:       keySet("institution", "location", "duration", "degree", "relevant_courses", "activities"),
	KindExperience:      keySet("organization", "location", "duration", "role", "bullets"),
	KindProjects:        keySet("project_name", "technologies", "duration", "location", "bullets"),
	KindTechnicalSkills: keySet("languages", "other"),
}

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

// fieldKeyList 返回 kind 允许的字段键（排序后），用于错误信息。
func fieldKeyList(kind SectionKind) []string {
	set := fieldKeys[kind]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// decodePatch 把 JSON 对象解码为补丁，只保留请求中实际出现的键。空输入或 null 得到空补丁。
func decodePatch(raw json.RawMessage) (FieldPatch, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return FieldPatch{}, nil
	}
	var patch FieldPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("%w: fields must be an object: %v", ErrMalformedBlock, err)
	}
	if patch == nil {
		patch = FieldPatch{}
	}
	return patch, nil
}

// Apply 把补丁合并到 current 上并返回新的字段集合，current 本身不被修改。
func (p FieldPatch) Apply(current Fields) (Fields, error) {
	if current == nil {
		return nil, fmt.Errorf("%w: block has no fields", ErrMalformedBlock)
	}
	kind := current.Kind()
	allowed, ok := fieldKeys[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSectionKind, kind)
	}
	for key := range p {
		if _, ok := allowed[key]; !ok {
			return nil, fmt.Errorf("%w: field %q is not valid for %s blocks (allowed: %s)",
				ErrMalformedBlock, key, kind, strings.Join(fieldKeyList(kind), ", "))
		}
	}

	base, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	merged := make(map[string]json.RawMessage, len(allowed))
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	for key, value := range p {
		merged[key] = value
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal merged fields: %w", err)
	}

	switch kind {
	case KindHeader:
		return decodeVariant[HeaderFields](data)
	case KindEducation:
		return decodeVariant[EducationFields](data)
	case KindExperience:
		f, err := decodeVariant[ExperienceFields](data)
		if err != nil {
			return nil, err
		}
		if f.Bullets == nil {
			f.Bullets = []string{}
		}
		return f, nil
	case KindProjects:
		f, err := decodeVariant[ProjectsFields](data)
		if err != nil {
			return nil, err
		}
		if f.Bullets == nil {
			f.Bullets = []string{}
		}
		return f, nil
	default:
		return decodeVariant[SkillsFields](data)
	}
}

func decodeVariant[T Fields](data []byte) (T, error) {
	var f T
	if err := json.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("%w: %v", ErrMalformedBlock, err)
	}
	return f, nil
}
