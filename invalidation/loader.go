package invalidation

import (
	"errors"
	"io"

	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rule set:
//
//	rules:
//	  - id: supplier-update
//	    trigger:
//	      table: suppliers
//	      operation: UPDATE
//	    targets:
//	      - type: query_cache
//	        pattern: "*suppliers*"
//	    strategy: scheduled
//	    delay: 5s
//	    priority: medium
//
// Rules are normalized and validated; the first invalid rule fails the whole file.
func LoadRules(r io.Reader) ([]Rule, error) {
	var file ruleFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "decode invalidation rules").
			WithTextCode("INVALID_RULE_FILE")
	}

	rules := make([]Rule, 0, len(file.Rules))
	for _, rule := range file.Rules {
		rule = rule.Normalize()
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
