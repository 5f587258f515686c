package validator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"tier0/internal/models"
)

// ErrRuleSet is returned for any rule set document that cannot be compiled.
var ErrRuleSet = errors.New("invalid rule set")

// CheckKind is the closed set of checks a rule can apply.
type CheckKind uint8

// Check kinds.
const (
	CheckPresence CheckKind = iota
	CheckNonEmpty
	CheckTypeString
	CheckTypeEnum
	CheckPattern
)

var checkNames = map[string]CheckKind{
	"presence":    CheckPresence,
	"required":    CheckPresence,
	"non_empty":   CheckNonEmpty,
	"type_string": CheckTypeString,
	"type_enum":   CheckTypeEnum,
	"pattern":     CheckPattern,
}

func (k CheckKind) String() string {
	switch k {
	case CheckPresence:
		return "presence"
	case CheckNonEmpty:
		return "non_empty"
	case CheckTypeString:
		return "type_string"
	case CheckTypeEnum:
		return "type_enum"
	case CheckPattern:
		return "pattern"
	default:
		return fmt.Sprintf("CheckKind(%d)", uint8(k))
	}
}

// Rule is one compiled check on one field.
type Rule struct {
	Field   string
	Check   CheckKind
	Values  []string
	Pattern *regexp.Regexp
}

// RuleSet is the compiled, immutable rule table.
type RuleSet struct {
	rules map[models.EntityKind][]Rule
}

// Rules returns a copy of the rules for kind in declared order.
func (rs *RuleSet) Rules(kind models.EntityKind) []Rule {
	return append([]Rule(nil), rs.rules[kind]...)
}

// Len returns the total number of compiled rules.
func (rs *RuleSet) Len() int {
	n := 0
	for _, r := range rs.rules {
		n += len(r)
	}

	return n
}

// ruleDocument is the on-disk shape shared by YAML and JSONC rule sets.
type ruleDocument struct {
	Rules map[string][]ruleSpec `yaml:"rules" json:"rules"`
}

type ruleSpec struct {
	Field    string   `yaml:"field" json:"field"`
	Required bool     `yaml:"required" json:"required"`
	Check    string   `yaml:"check" json:"check"`
	Values   []string `yaml:"values" json:"values"`
	Pattern  string   `yaml:"pattern" json:"pattern"`
}

// LoadRules reads and compiles a rule set. Files ending in .json or .jsonc
// are parsed as JSON with comments, anything else as YAML.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrRuleSet, path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return ParseJSONC(data)
	default:
		return ParseYAML(data)
	}
}

// ParseYAML compiles a YAML rule set. Unknown keys are rejected.
func ParseYAML(data []byte) (*RuleSet, error) {
	var doc ruleDocument

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuleSet, err)
	}

	return Compile(doc.Rules)
}

// ParseJSONC compiles a JSON rule set that may carry comments and trailing
// commas. Unknown keys are rejected.
func ParseJSONC(data []byte) (*RuleSet, error) {
	var doc ruleDocument

	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuleSet, err)
	}

	return Compile(doc.Rules)
}

// Compile turns rule declarations keyed by entity kind into a RuleSet.
func Compile(decl map[string][]ruleSpec) (*RuleSet, error) {
	rs := &RuleSet{rules: make(map[models.EntityKind][]Rule, len(decl))}

	for kindName, specs := range decl {
		kind := models.EntityKind(kindName)
		if kind != models.KindFirm && kind != models.KindOffice {
			return nil, fmt.Errorf("%w: unknown entity kind %q", ErrRuleSet, kindName)
		}

		for i, entry := range specs {
			compiled, err := compileRule(kind, entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %s rule %d: %w", ErrRuleSet, kind, i+1, err)
			}

			rs.rules[kind] = append(rs.rules[kind], compiled...)
		}
	}

	return rs, nil
}

func compileRule(kind models.EntityKind, entry ruleSpec) ([]Rule, error) {
	if entry.Field == "" {
		return nil, errors.New("field is required")
	}

	if !knownField(kind, entry.Field) {
		return nil, fmt.Errorf("unknown field %q", entry.Field)
	}

	var out []Rule

	if entry.Required {
		out = append(out, Rule{Field: entry.Field, Check: CheckPresence})
	}

	if entry.Check == "" {
		if !entry.Required {
			return nil, fmt.Errorf("field %q declares no check", entry.Field)
		}

		return out, nil
	}

	check, ok := checkNames[entry.Check]
	if !ok {
		return nil, fmt.Errorf("unknown check kind %q", entry.Check)
	}

	rule := Rule{Field: entry.Field, Check: check}

	switch check {
	case CheckPresence:
		if entry.Required {
			return out, nil
		}
	case CheckTypeEnum:
		if len(entry.Values) == 0 {
			return nil, fmt.Errorf("field %q: type_enum needs values", entry.Field)
		}

		rule.Values = append([]string(nil), entry.Values...)
	case CheckPattern:
		if entry.Pattern == "" {
			return nil, fmt.Errorf("field %q: pattern is empty", entry.Field)
		}

		re, err := regexp.Compile(entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", entry.Field, err)
		}

		rule.Pattern = re
	case CheckNonEmpty, CheckTypeString:
	}

	return append(out, rule), nil
}
