package engine

import (
	"fmt"
	"slices"
	"sort"
)

// Node — узел в DAG.
type Node struct {
	// Spec — описание executor'а.
	Spec *ExecutorSpec

	// ID — имя executor'а.
	ID string

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел, в порядке объявления.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф executors одного описания.
type DAG struct {
	// Nodes — все узлы графа (имя → Node).
	Nodes map[string]*Node

	// RootNodes — узлы без зависимостей, в порядке объявления.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	// Каждый узел стоит после всех своих зависимостей.
	Order []*Node
}

// BuildDAG строит DAG из секции executors.
//
// Порядок объявления executors не важен: зависимость может быть
// объявлена как до, так и после зависимого executor'а.
// Ссылка на отсутствующее имя — ErrUnknownDependency,
// цикл (в том числе зависимость от себя) — ErrCyclicDependency.
func BuildDAG(executors []ExecutorSpec) (*DAG, error) {
	dag := &DAG{
		Nodes:     make(map[string]*Node, len(executors)),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: создаём все узлы
	index := make([]*Node, 0, len(executors))
	for i := range executors {
		spec := &executors[i]
		if _, dup := dag.Nodes[spec.Name]; dup {
			return nil, NewBuildError(spec.Name, "name", "duplicate executor name", ErrInvalidDescription)
		}
		node := &Node{
			Spec:       spec,
			ID:         spec.Name,
			DependsOn:  make([]*Node, 0, len(spec.Depends)),
			Dependents: make([]*Node, 0),
		}
		dag.Nodes[spec.Name] = node
		index = append(index, node)
	}

	// Второй проход: связываем узлы по зависимостям
	for _, node := range index {
		if err := dag.linkDependencies(node); err != nil {
			return nil, err
		}
	}

	for _, node := range index {
		if node.InDegree == 0 {
			dag.RootNodes = append(dag.RootNodes, node)
		}
	}

	order, err := dag.topologicalSort(index)
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// linkDependencies связывает узел с его зависимостями.
func (d *DAG) linkDependencies(node *Node) error {
	for _, depID := range node.Spec.Depends {
		if depID == node.ID {
			return NewBuildError(node.ID, "depends", "executor depends on itself", ErrCyclicDependency)
		}

		depNode, exists := d.Nodes[depID]
		if !exists {
			return NewBuildError(node.ID, "depends",
				fmt.Sprintf("executor %s depends on %s which does not exist", node.ID, depID),
				ErrUnknownDependency)
		}

		d.addEdge(depNode, node)
	}
	return nil
}

// addEdge добавляет ребро между узлами.
// Повторное объявление той же зависимости не создаёт второе ребро.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// topologicalSort упорядочивает узлы алгоритмом Кана. Из готовых узлов
// всегда берётся объявленный раньше, поэтому порядок воспроизводим.
func (d *DAG) topologicalSort(index []*Node) ([]*Node, error) {
	remaining := make(map[*Node]int, len(index))
	position := make(map[*Node]int, len(index))
	for i, node := range index {
		remaining[node] = node.InDegree
		position[node] = i
	}

	// ready отсортирован по позиции объявления.
	ready := append([]*Node(nil), d.RootNodes...)
	order := make([]*Node, 0, len(index))

	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		for _, dependent := range node.Dependents {
			remaining[dependent]--
			if remaining[dependent] > 0 {
				continue
			}
			at := sort.Search(len(ready), func(i int) bool {
				return position[ready[i]] > position[dependent]
			})
			ready = slices.Insert(ready, at, dependent)
		}
	}

	if len(order) == len(index) {
		return order, nil
	}

	stuck := make([]string, 0, len(index)-len(order))
	for _, node := range index {
		if remaining[node] > 0 {
			stuck = append(stuck, node.ID)
		}
	}
	sort.Strings(stuck)
	return nil, NewBuildError("", "depends",
		fmt.Sprintf("cyclic dependency between executors %v", stuck),
		ErrCyclicDependency)
}

// GetNode возвращает узел по имени.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// EdgeCount возвращает количество рёбер.
func (d *DAG) EdgeCount() int {
	count := 0
	for _, node := range d.Nodes {
		count += len(node.DependsOn)
	}
	return count
}
