package engine

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shaiso/Conveyor/internal/domain"
	"gopkg.in/yaml.v3"
)

// Info — секция info описания pipeline.
type Info struct {
	Name        string `yaml:"name"`
	Project     string `yaml:"project"`
	Report      string `yaml:"report,omitempty"`
	DockerImage string `yaml:"docker_img,omitempty"`
	Computer    string `yaml:"computer,omitempty"`
	DataFolder  string `yaml:"data_folder,omitempty"`
}

// ExecutorSpec — описание одного node в секции executors.
type ExecutorSpec struct {
	// Name — ключ в секции executors.
	Name string

	Type     string
	Depends  []string
	GPU      int
	CPU      int
	Memory   float64
	Steps    int
	TaskType string
	Report   string

	// Extra — все остальные ключи (slot, dag, interface, ...).
	Extra map[string]any
}

// Pipeline — разобранное описание pipeline.
type Pipeline struct {
	Info Info

	// Executors — в порядке объявления.
	Executors []ExecutorSpec

	// Interfaces и Pipes — секции pipe-графа.
	Interfaces map[string]any
	Pipes      map[string][]ExecutorSpec
}

// Значения ресурсов по умолчанию.
const (
	defaultCPU    = 1
	defaultMemory = 0.1
	defaultSteps  = 1
)

// Известные ключи executor'а; остальные уходят в Extra.
var knownExecutorKeys = map[string]bool{
	"type": true, "depends": true, "gpu": true, "cpu": true, "memory": true,
	"steps": true, "task_type": true, "report": true,
}

// Parse разбирает YAML описание pipeline.
//
// Проверяет:
// - Наличие info с name и project
// - Наличие executors (обычный граф) или interfaces + pipes (pipe-граф)
// - Наличие type у каждого executor'а
func Parse(raw []byte) (*Pipeline, error) {
	var top map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}

	p := &Pipeline{}

	infoNode, ok := top["info"]
	if !ok {
		return nil, fmt.Errorf("%w: info", ErrMissingKey)
	}
	if err := infoNode.Decode(&p.Info); err != nil {
		return nil, fmt.Errorf("%w: info: %v", ErrInvalidDescription, err)
	}
	if p.Info.Name == "" {
		return nil, fmt.Errorf("%w: info.name", ErrMissingKey)
	}
	if p.Info.Project == "" {
		return nil, fmt.Errorf("%w: info.project", ErrMissingKey)
	}

	if node, ok := top["executors"]; ok {
		executors, err := decodeExecutors(&node)
		if err != nil {
			return nil, err
		}
		p.Executors = executors
		return p, nil
	}

	ifaceNode, hasIfaces := top["interfaces"]
	pipesNode, hasPipes := top["pipes"]
	switch {
	case !hasIfaces && !hasPipes:
		return nil, fmt.Errorf("%w: executors", ErrMissingKey)
	case !hasIfaces:
		return nil, fmt.Errorf("%w: interfaces", ErrMissingKey)
	case !hasPipes:
		return nil, fmt.Errorf("%w: pipes", ErrMissingKey)
	}

	if err := ifaceNode.Decode(&p.Interfaces); err != nil {
		return nil, fmt.Errorf("%w: interfaces: %v", ErrInvalidDescription, err)
	}
	if p.Interfaces == nil {
		p.Interfaces = map[string]any{}
	}

	if pipesNode.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: pipes must be a mapping", ErrInvalidDescription)
	}
	p.Pipes = make(map[string][]ExecutorSpec)
	for i := 0; i+1 < len(pipesNode.Content); i += 2 {
		name := pipesNode.Content[i].Value
		executors, err := decodeExecutors(pipesNode.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("pipe %s: %w", name, err)
		}
		p.Pipes[name] = executors
	}

	return p, nil
}

// Kind возвращает вид графа для описания.
func (p *Pipeline) Kind() domain.GraphKind {
	if p.Executors == nil && p.Pipes != nil {
		return domain.GraphKindPipe
	}
	return domain.GraphKindStandard
}

// Executor возвращает executor по имени.
func (p *Pipeline) Executor(name string) (*ExecutorSpec, bool) {
	for i := range p.Executors {
		if p.Executors[i].Name == name {
			return &p.Executors[i], true
		}
	}
	return nil, false
}

// Marshal сериализует описание обратно в YAML.
// Порядок executors сохраняется.
func (p *Pipeline) Marshal() ([]byte, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}

	if err := appendPair(doc, "info", p.Info); err != nil {
		return nil, err
	}

	if p.Executors != nil {
		node, err := executorsNode(p.Executors)
		if err != nil {
			return nil, err
		}
		if err := appendPair(doc, "executors", node); err != nil {
			return nil, err
		}
	}

	if p.Pipes != nil {
		if err := appendPair(doc, "interfaces", p.Interfaces); err != nil {
			return nil, err
		}

		names := make([]string, 0, len(p.Pipes))
		for name := range p.Pipes {
			names = append(names, name)
		}
		sort.Strings(names)

		pipes := &yaml.Node{Kind: yaml.MappingNode}
		for _, name := range names {
			node, err := executorsNode(p.Pipes[name])
			if err != nil {
				return nil, err
			}
			if err := appendPair(pipes, name, node); err != nil {
				return nil, err
			}
		}
		if err := appendPair(doc, "pipes", pipes); err != nil {
			return nil, err
		}
	}

	return yaml.Marshal(doc)
}

// ToMap возвращает executor в виде map для сериализации.
func (e *ExecutorSpec) ToMap() map[string]any {
	m := make(map[string]any, len(e.Extra)+8)
	for k, v := range e.Extra {
		m[k] = v
	}
	m["type"] = e.Type
	if len(e.Depends) > 0 {
		m["depends"] = e.Depends
	}
	m["gpu"] = e.GPU
	m["cpu"] = e.CPU
	m["memory"] = e.Memory
	m["steps"] = e.Steps
	if e.TaskType != "" {
		m["task_type"] = e.TaskType
	}
	if e.Report != "" {
		m["report"] = e.Report
	}
	return m
}

// NewExecutorSpec создаёт executor с ресурсами по умолчанию.
func NewExecutorSpec(name, typ string) ExecutorSpec {
	return ExecutorSpec{
		Name:   name,
		Type:   typ,
		CPU:    defaultCPU,
		Memory: defaultMemory,
		Steps:  defaultSteps,
		Extra:  map[string]any{},
	}
}

// --- Helpers ---

func decodeExecutors(node *yaml.Node) ([]ExecutorSpec, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: executors must be a mapping", ErrInvalidDescription)
	}

	executors := make([]ExecutorSpec, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value

		var raw map[string]any
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return nil, NewBuildError(name, "", fmt.Sprintf("decode executor: %v", err), ErrInvalidDescription)
		}

		spec, err := executorFromMap(name, raw)
		if err != nil {
			return nil, err
		}
		executors = append(executors, spec)
	}
	return executors, nil
}

func executorFromMap(name string, raw map[string]any) (ExecutorSpec, error) {
	spec := NewExecutorSpec(name, "")

	typ, _ := raw["type"].(string)
	if typ == "" {
		return spec, NewBuildError(name, "type", "executor has empty type", ErrEmptyType)
	}
	spec.Type = typ

	switch deps := raw["depends"].(type) {
	case nil:
	case string:
		spec.Depends = []string{deps}
	case []any:
		for _, d := range deps {
			s, ok := d.(string)
			if !ok {
				return spec, NewBuildError(name, "depends",
					fmt.Sprintf("dependency %v is not a name", d), ErrInvalidDescription)
			}
			spec.Depends = append(spec.Depends, s)
		}
	default:
		return spec, NewBuildError(name, "depends", "depends must be a name or a list", ErrInvalidDescription)
	}

	var err error
	if spec.GPU, err = intField(raw, "gpu", 0); err != nil {
		return spec, NewBuildError(name, "gpu", err.Error(), ErrInvalidDescription)
	}
	if spec.CPU, err = intField(raw, "cpu", defaultCPU); err != nil {
		return spec, NewBuildError(name, "cpu", err.Error(), ErrInvalidDescription)
	}
	if spec.Steps, err = intField(raw, "steps", defaultSteps); err != nil {
		return spec, NewBuildError(name, "steps", err.Error(), ErrInvalidDescription)
	}
	if spec.Memory, err = floatField(raw, "memory", defaultMemory); err != nil {
		return spec, NewBuildError(name, "memory", err.Error(), ErrInvalidDescription)
	}

	spec.TaskType, _ = raw["task_type"].(string)
	spec.Report, _ = raw["report"].(string)

	for k, v := range raw {
		if !knownExecutorKeys[k] {
			spec.Extra[k] = v
		}
	}

	return spec, nil
}

func intField(raw map[string]any, key string, fallback int) (int, error) {
	switch v := raw[key].(type) {
	case nil:
		return fallback, nil
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not an integer", key, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: unexpected value %v", key, v)
	}
}

func floatField(raw map[string]any, key string, fallback float64) (float64, error) {
	switch v := raw[key].(type) {
	case nil:
		return fallback, nil
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s: unexpected value %v", key, v)
	}
}

func executorsNode(executors []ExecutorSpec) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for i := range executors {
		if err := appendPair(node, executors[i].Name, executors[i].ToMap()); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func appendPair(mapping *yaml.Node, key string, value any) error {
	keyNode := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}

	valueNode, ok := value.(*yaml.Node)
	if !ok {
		valueNode = &yaml.Node{}
		if err := valueNode.Encode(value); err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
	}

	mapping.Content = append(mapping.Content, keyNode, valueNode)
	return nil
}
