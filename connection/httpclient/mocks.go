package httpclient

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) Exchange(ctx context.Context, path string, payload []byte) ([]byte, error) {
	args := m.Called(path, payload)

	var body []byte
	if b := args.Get(0); b != nil {
		body = b.([]byte)
	}
	return body, args.Error(1)
}
