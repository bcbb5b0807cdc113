package yamltree

import (
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/astrozzc/manageiq-automation-engine/internal/domain"
	"gopkg.in/yaml.v3"
)

type document struct {
	ObjectType string `yaml:"object_type"`
	Version    any    `yaml:"version"`
	Object     struct {
		Attributes map[string]any              `yaml:"attributes"`
		Schema     []map[string]map[string]any `yaml:"schema"`
		Fields     []map[string]map[string]any `yaml:"fields"`
		Inputs     []map[string]map[string]any `yaml:"inputs"`
	} `yaml:"object"`
}

func (s *Source) load(name string) (document, error) {
	var doc document
	data, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	if doc.Object.Attributes == nil {
		return doc, fmt.Errorf("%s: missing object attributes", name)
	}
	return doc, nil
}

func domainAttributes(a map[string]any) (domain.DomainAttributes, error) {
	attrs := domain.DomainAttributes{
		Name:        stringAttr(a, "name"),
		Description: stringAttr(a, "description"),
		DisplayName: stringAttr(a, "display_name"),
	}
	if v, ok := a["priority"]; ok && v != nil {
		p, err := toInt(v)
		if err != nil {
			return attrs, fmt.Errorf("domain %s priority: %w", attrs.Name, err)
		}
		attrs.Priority = &p
	}
	if v, ok := a["tenant_id"]; ok && v != nil {
		id, err := toInt(v)
		if err != nil || id < 0 {
			return attrs, fmt.Errorf("domain %s tenant_id: invalid value %v", attrs.Name, v)
		}
		tid := uint(id)
		attrs.TenantID = &tid
	}
	if v, ok := a["enabled"]; ok && v != nil {
		b := v == true
		attrs.Enabled = &b
	}
	if v, ok := a["source"]; ok && v != nil {
		src := domain.Source(fmt.Sprint(v))
		attrs.Source = &src
	}
	// Any value other than true means an unlocked user domain.
	if v, ok := a["system"]; ok {
		b := v == true
		attrs.System = &b
	}
	return attrs, nil
}

func classAttributes(a map[string]any) domain.ClassAttributes {
	return domain.ClassAttributes{
		Name:        stringAttr(a, "name"),
		DisplayName: stringAttr(a, "display_name"),
		Description: stringAttr(a, "description"),
		Type:        stringAttr(a, "type"),
		Inherits:    stringAttr(a, "inherits"),
		Visibility:  stringAttr(a, "visibility"),
	}
}

func classSchema(entries []map[string]map[string]any) []domain.ClassField {
	var fields []domain.ClassField
	for _, entry := range entries {
		f, ok := entry["field"]
		if !ok {
			continue
		}
		priority, _ := toInt(f["priority"])
		fields = append(fields, domain.ClassField{
			Name:         stringAttr(f, "name"),
			AeType:       stringAttr(f, "aetype"),
			Datatype:     stringAttr(f, "datatype"),
			DisplayName:  stringAttr(f, "display_name"),
			Description:  stringAttr(f, "description"),
			DefaultValue: stringAttr(f, "default_value"),
			Substitute:   f["substitute"] == true,
			Priority:     priority,
		})
	}
	return fields
}

func instanceDefinition(doc document) domain.InstanceDefinition {
	a := doc.Object.Attributes
	inst := domain.InstanceDefinition{
		Name:        stringAttr(a, "name"),
		DisplayName: stringAttr(a, "display_name"),
		Description: stringAttr(a, "description"),
	}
	for _, entry := range doc.Object.Fields {
		keys := make([]string, 0, len(entry))
		for k := range entry {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			inst.Values = append(inst.Values, domain.InstanceValue{Field: k, Value: stringAttr(entry[k], "value")})
		}
	}
	return inst
}

func methodAttributes(a map[string]any) domain.MethodAttributes {
	attrs := domain.MethodAttributes{
		Name:        stringAttr(a, "name"),
		DisplayName: stringAttr(a, "display_name"),
		Description: stringAttr(a, "description"),
		Location:    stringAttr(a, "location"),
		Language:    stringAttr(a, "language"),
		Scope:       stringAttr(a, "scope"),
	}
	if raw, ok := a["options"].(map[string]any); ok {
		attrs.Options = make(map[string]any, len(raw))
		for k, v := range raw {
			attrs.Options[strings.TrimPrefix(k, ":")] = v
		}
	}
	return attrs
}

func methodInputs(entries []map[string]map[string]any) []domain.MethodInput {
	var inputs []domain.MethodInput
	for _, entry := range entries {
		f, ok := entry["field"]
		if !ok {
			continue
		}
		priority, _ := toInt(f["priority"])
		inputs = append(inputs, domain.MethodInput{
			Name:         stringAttr(f, "name"),
			Datatype:     stringAttr(f, "datatype"),
			DefaultValue: stringAttr(f, "default_value"),
			Priority:     priority,
		})
	}
	return inputs
}

func stringAttr(a map[string]any, key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("not an integer: %v", v)
}
