package compliance

import (
	"encoding/json"
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"
)

// paramValue accepts the two value shapes Tekton parameters come in, a plain
// string or a list of strings.
type paramValue []string

func (v *paramValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = []string{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*v = list
		return nil
	}
	return fmt.Errorf("parameter value %s is neither a string nor a list of strings", string(data))
}

type pipelineParam struct {
	Name  string     `json:"name"`
	Value paramValue `json:"value"`
	// Default carries the value in the embedded pipelineSpec location, where
	// parameters are declared rather than passed.
	Default paramValue `json:"default"`
}

// PipelineDefinition is the slice of a Tekton PipelineRun definition the
// compliance checks read.
type PipelineDefinition struct {
	Spec struct {
		Params       []pipelineParam `json:"params"`
		PipelineSpec struct {
			Params []pipelineParam `json:"params"`
		} `json:"pipelineSpec"`
	} `json:"spec"`
}

// ParsePipelineDefinition parses a .tekton PipelineRun file.
func ParsePipelineDefinition(data []byte) (*PipelineDefinition, error) {
	definition := &PipelineDefinition{}
	if err := yaml.Unmarshal(data, definition); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pipeline definition: %w", err)
	}
	return definition, nil
}

// Param resolves a parameter by name. The value passed in spec.params wins;
// the default declared in the embedded spec.pipelineSpec.params is a fallback
// consulted only when no value is passed.
func (d *PipelineDefinition) Param(name string) []string {
	for _, param := range d.Spec.Params {
		if param.Name == name && len(param.Value) > 0 {
			return param.Value
		}
	}
	for _, param := range d.Spec.PipelineSpec.Params {
		if param.Name == name && len(param.Default) > 0 {
			return param.Default
		}
	}
	return nil
}

// Hermetic reports whether the definition enables hermetic builds.
func (d *PipelineDefinition) Hermetic() bool {
	value := d.Param("hermetic")
	return len(value) == 1 && strings.EqualFold(value[0], "true")
}

// MultiArch reports whether the definition builds for more than one platform.
func (d *PipelineDefinition) MultiArch() bool {
	return len(d.Param("build-platforms")) > 1
}
