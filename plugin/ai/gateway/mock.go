package gateway

import "context"

// MockChatClient is a scripted ChatClient. Errs are returned in order, one
// per call, before Response succeeds.
type MockChatClient struct {
	Response string
	Errs     []error

	// Calls records each message list handed upstream.
	Calls [][]Message

	calls int
}

var _ ChatClient = (*MockChatClient)(nil)

func (m *MockChatClient) Chat(_ context.Context, messages []Message, _ int, _ float32) (string, error) {
	m.Calls = append(m.Calls, messages)
	defer func() { m.calls++ }()
	if m.calls < len(m.Errs) {
		return "", m.Errs[m.calls]
	}
	return m.Response, nil
}

// ChatStream replays the same script as Chat, emitting the response as a
// single delta.
func (m *MockChatClient) ChatStream(_ context.Context, messages []Message, _ int, _ float32, onDelta func(string)) (string, error) {
	m.Calls = append(m.Calls, messages)
	defer func() { m.calls++ }()
	if m.calls < len(m.Errs) {
		return "", m.Errs[m.calls]
	}
	if onDelta != nil {
		onDelta(m.Response)
	}
	return m.Response, nil
}

func (m *MockChatClient) Model() string {
	return "mock/chat"
}
