package core

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/waygraph/internal/store"
)

type MockCall struct {
	Query  string
	Params map[string]interface{}
}

type MockDriver struct {
	Calls        []MockCall
	MockResult   neo4j.EagerResult
	Err          error
	FailOn       string
	IndicesBuilt bool
	Unreachable  error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Calls = append(m.Calls, MockCall{Query: query, Params: params})
	if m.Err != nil && (m.FailOn == "" || m.FailOn == query) {
		return neo4j.EagerResult{}, m.Err
	}
	return m.MockResult, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error {
	m.IndicesBuilt = true
	return m.Err
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error {
	return m.Unreachable
}

func (m *MockDriver) Close(ctx context.Context) error {
	return nil
}

func (m *MockDriver) Queries() []string {
	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Query
	}
	return out
}

type MockSink struct {
	Snapshots []store.Snapshot
	Err       error
}

func (m *MockSink) SaveSnapshot(ctx context.Context, snap store.Snapshot) error {
	if m.Err != nil {
		return m.Err
	}
	m.Snapshots = append(m.Snapshots, snap)
	return nil
}
