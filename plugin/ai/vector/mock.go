package vector

import "context"

// MockStore is a scripted Store for tests in dependent packages. Results and
// errors are keyed by namespace.
type MockStore struct {
	Results map[string][]Source
	Errs    map[string]error

	// Queried records each queried namespace in call order.
	Queried []string
}

var _ Store = (*MockStore)(nil)

func (m *MockStore) Upsert(context.Context, Record) error {
	return nil
}

func (m *MockStore) Query(_ context.Context, namespace string, _ []float32, opts QueryOptions) ([]Source, error) {
	m.Queried = append(m.Queried, namespace)
	if err, ok := m.Errs[namespace]; ok {
		return nil, err
	}
	sources := m.Results[namespace]
	if opts.TopK > 0 && len(sources) > opts.TopK {
		sources = sources[:opts.TopK]
	}
	return sources, nil
}

func (m *MockStore) Delete(context.Context, string, string) error {
	return nil
}

func (m *MockStore) ReindexNamespace(context.Context, string, Embedder) (int, error) {
	return 0, nil
}
