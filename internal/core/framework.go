package core

import (
	_ "embed"
	"fmt"
	"strings"

	"creative-backend/pkg/api"

	"gopkg.in/yaml.v2"
)

type SubCriterion struct {
	Id            string `yaml:"id"`
	Name          string `yaml:"name"`
	Question      string `yaml:"question"`
	ScoreType     string `yaml:"score_type"`
	FailCondition string `yaml:"fail_condition"`
	Mechanic      string `yaml:"mechanic"`
}

type Layer struct {
	Id          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	SubCriteria []SubCriterion `yaml:"sub_criteria"`
}

const (
	LayerEmotional   = "A"
	LayerBrand       = "B"
	LayerStrategic   = "C"
	LayerAttention   = "D"
	LayerPersuasion  = "E"
	LayerRisk        = "F"
	CriterionAlign   = "C1"
	CriterionWearOut = "F1"
	CriterionRepRisk = "F2"
)

//go:embed framework.yaml
var frameworkYAML []byte

var framework = mustLoadFramework()

func mustLoadFramework() []Layer {
	var file struct {
		Layers []Layer `yaml:"layers"`
	}
	if err := yaml.Unmarshal(frameworkYAML, &file); err != nil {
		panic(fmt.Sprintf("embedded framework is invalid: %v", err))
	}
	return file.Layers
}

func Layers() []Layer {
	out := make([]Layer, len(framework))
	copy(out, framework)
	return out
}

func LookupLayer(id string) (Layer, bool) {
	for _, layer := range framework {
		if layer.Id == id {
			return layer, true
		}
	}
	return Layer{}, false
}

// LayersFor returns the framework layers in a role's remit, in framework order.
func LayersFor(role RoleDefinition) []Layer {
	var layers []Layer
	for _, layer := range framework {
		if role.HasLayer(layer.Id) {
			layers = append(layers, layer)
		}
	}
	return layers
}

func LayerName(id string) string {
	if layer, ok := LookupLayer(id); ok {
		return layer.Name
	}
	return id
}

func FrameworkInfo() []api.LayerInfo {
	infos := make([]api.LayerInfo, 0, len(framework))
	for _, layer := range framework {
		info := api.LayerInfo{Id: layer.Id, Name: layer.Name}
		for _, sc := range layer.SubCriteria {
			info.SubCriteria = append(info.SubCriteria, api.SubCriterionInfo{
				Id:            sc.Id,
				Name:          sc.Name,
				ScoreType:     sc.ScoreType,
				FailCondition: sc.FailCondition,
			})
		}
		infos = append(infos, info)
	}
	return infos
}

func FrameworkPrompt(layers []Layer) string {
	sections := make([]string, 0, len(layers))
	for _, layer := range layers {
		var b strings.Builder
		fmt.Fprintf(&b, "## LAYER %s: %s\n\n", layer.Id, strings.ToUpper(layer.Name))
		for _, sc := range layer.SubCriteria {
			fmt.Fprintf(&b, "### %s. %s\n", sc.Id, sc.Name)
			fmt.Fprintf(&b, "Question: %s\n", sc.Question)
			fmt.Fprintf(&b, "Score type: %s\n", sc.ScoreType)
			fmt.Fprintf(&b, "Fail condition: %s\n", sc.FailCondition)
			fmt.Fprintf(&b, "Evaluation mechanic:\n%s\n", strings.TrimSpace(sc.Mechanic))
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n---\n\n")
}
