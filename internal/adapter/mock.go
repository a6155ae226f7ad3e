package adapter

import "context"

// Mock is a test double that returns a scripted response per node key,
// falling back to Default when a key has no script entry. Used by
// internal/demo and engine tests to exercise the frame loop without
// shelling out to a real agent CLI.
type Mock struct {
	Responses map[string]Result
	Default   Result
	Calls     []Options
}

// NewMock returns a Mock with an empty script; set Responses/Default before use.
func NewMock() *Mock {
	return &Mock{Responses: make(map[string]Result)}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Invoke(_ context.Context, opts Options, onChunk func(Chunk)) (Result, error) {
	m.Calls = append(m.Calls, opts)

	result, ok := m.Responses[opts.NodeKey]
	if !ok {
		result = m.Default
	}

	if onChunk != nil {
		onChunk(Chunk{Kind: ChunkStart})
		if result.Text != "" {
			onChunk(Chunk{Kind: ChunkDelta, Text: result.Text})
		}
		onChunk(Chunk{Kind: ChunkEnd})
	}

	return result, nil
}
