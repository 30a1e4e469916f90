package dagexec

import (
	"errors"

	"github.com/zerfoo/metagraph/producer"
)

// Graph is a validated, topologically ordered sub-DAG of producers,
// generalizing graph.Graph[T]'s tensor-node builder to row-producer
// nodes: the same arena-of-nodes-plus-dependency-map shape, the same
// depth-first cycle check, adapted to the meta-transformer domain.
type Graph struct {
	nodes        []producer.Producer
	dependencies map[producer.Producer][]producer.Producer
	outputs      []producer.Producer
}

// Builder assembles a Graph. Matches graph.Builder[T]'s
// AddNode/Build shape.
type Builder struct {
	nodes        []producer.Producer
	dependencies map[producer.Producer][]producer.Producer
}

// NewBuilder creates an empty sub-DAG builder.
func NewBuilder() *Builder {
	return &Builder{dependencies: make(map[producer.Producer][]producer.Producer)}
}

// AddNode registers node with its dependencies (its transformer input
// list, or none for a root).
func (b *Builder) AddNode(node producer.Producer, deps ...producer.Producer) producer.Producer {
	b.nodes = append(b.nodes, node)
	b.dependencies[node] = deps
	return node
}

// Build validates the accumulated nodes (cycle detection, topological
// sort) and returns the finished Graph with the given outputs.
func (b *Builder) Build(outputs ...producer.Producer) (*Graph, error) {
	sorted, err := topologicalSort(b.nodes, b.dependencies)
	if err != nil {
		return nil, err
	}
	return &Graph{
		nodes:        sorted,
		dependencies: b.dependencies,
		outputs:      outputs,
	}, nil
}

// Nodes returns the nodes in topological order.
func (g *Graph) Nodes() []producer.Producer { return g.nodes }

// Dependencies returns the registered dependencies of a node.
func (g *Graph) Dependencies(p producer.Producer) []producer.Producer {
	return g.dependencies[p]
}

// Outputs returns the graph's designated output producers.
func (g *Graph) Outputs() []producer.Producer { return g.outputs }

func topologicalSort(nodes []producer.Producer, deps map[producer.Producer][]producer.Producer) ([]producer.Producer, error) {
	var sorted []producer.Producer

	visited := make(map[producer.Producer]bool)
	inStack := make(map[producer.Producer]bool)

	var visit func(n producer.Producer) error
	visit = func(n producer.Producer) error {
		if inStack[n] {
			return errors.New("dagexec: cycle detected in sub-DAG")
		}
		if visited[n] {
			return nil
		}

		inStack[n] = true
		visited[n] = true

		for _, dep := range deps[n] {
			if err := visit(dep); err != nil {
				return err
			}
		}

		sorted = append(sorted, n)
		delete(inStack, n)
		return nil
	}

	for _, n := range nodes {
		if err := visit(n); err != nil {
			return nil, err
		}
	}

	return sorted, nil
}
