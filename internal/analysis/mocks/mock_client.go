package mocks

import (
	"context"

	"transitdocs/internal/analysis"
	"transitdocs/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) AnalyzeDocument(ctx context.Context, fileData, filename, instruction string) (*model.Analysis, error) {
	args := m.Called(ctx, fileData, filename, instruction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Analysis), args.Error(1)
}

func (m *MockClient) GmailAuthURL(ctx context.Context, userID string) (*analysis.AuthURL, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.AuthURL), args.Error(1)
}

func (m *MockClient) ImportFromGmail(ctx context.Context, state, query string, maxResults int) (*analysis.ImportResult, error) {
	args := m.Called(ctx, state, query, maxResults)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.ImportResult), args.Error(1)
}

func (m *MockClient) Health(ctx context.Context) (map[string]any, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}
