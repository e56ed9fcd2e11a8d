package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"transitdocs/internal/analysis"
	"transitdocs/internal/model"
	"transitdocs/internal/service"
	"transitdocs/internal/session"
)

type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Ingest(ctx context.Context, sess session.Session, files []service.FileInput, instruction string) (*service.IngestResult, error) {
	args := m.Called(ctx, sess, files, instruction)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

func (m *MockIngestor) GmailAuthURL(ctx context.Context, sess session.Session) (*analysis.AuthURL, error) {
	args := m.Called(ctx, sess)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.AuthURL), args.Error(1)
}

func (m *MockIngestor) ImportFromGmail(ctx context.Context, sess session.Session, state string) (*analysis.ImportResult, error) {
	args := m.Called(ctx, sess, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.ImportResult), args.Error(1)
}

type MockDocumentsService struct {
	mock.Mock
}

func (m *MockDocumentsService) Load(ctx context.Context, sess session.Session, scope model.Scope) ([]model.Document, error) {
	args := m.Called(ctx, sess, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *MockDocumentsService) ToggleRead(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentsService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDocumentsService) Reanalyze(ctx context.Context, id string) (*model.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *MockDocumentsService) ViewURL(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}
