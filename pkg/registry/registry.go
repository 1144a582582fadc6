// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRegistry(data)
}

func ParseRegistry(data []byte) (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse activity registry: %w", err)
	}
	return &reg, nil
}

// Find returns the activity registered for a task type.
func (r *ActivityRegistry) Find(taskType string) (*Activity, bool) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], true
		}
	}
	return nil, false
}

// Check reports every structural problem in the registry: missing ids,
// duplicate task types and schemas that do not compile.
func (r *ActivityRegistry) Check() []string {
	var problems []string
	seen := map[string]string{}
	for _, a := range r.Activities {
		if a.ID == "" {
			problems = append(problems, fmt.Sprintf("activity with task type %q has no id", a.TaskType))
		}
		if a.TaskType == "" {
			problems = append(problems, fmt.Sprintf("activity %q has no task type", a.ID))
			continue
		}
		if prev, ok := seen[a.TaskType]; ok {
			problems = append(problems, fmt.Sprintf("task type %q registered by %q and %q", a.TaskType, prev, a.ID))
		}
		seen[a.TaskType] = a.ID

		if _, err := a.TimeoutDuration(); err != nil {
			problems = append(problems, err.Error())
		}
		if a.Retries < 0 {
			problems = append(problems, fmt.Sprintf("activity %q: negative retries", a.ID))
		}

		for kind, schema := range map[string]map[string]interface{}{"input": a.InputSchema, "output": a.OutputSchema} {
			if schema == nil {
				continue
			}
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
				problems = append(problems, fmt.Sprintf("activity %q: invalid %s schema: %v", a.ID, kind, err))
			}
		}
	}
	return problems
}

// ValidateInput checks job variables against the activity's input schema.
// Activities without an input schema accept anything.
func (a *Activity) ValidateInput(variables map[string]interface{}) error {
	if a.InputSchema == nil {
		return nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(a.InputSchema))
	if err != nil {
		return fmt.Errorf("activity %s: invalid input schema: %w", a.ID, err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(variables))
	if err != nil {
		return fmt.Errorf("activity %s: validate input: %w", a.ID, err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			msgs[i] = e.String()
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}
