package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"transitdocs/internal/analysis"
	analysisMocks "transitdocs/internal/analysis/mocks"
	"transitdocs/internal/events"
	eventMocks "transitdocs/internal/events/mocks"
	"transitdocs/internal/model"
	repoMocks "transitdocs/internal/repository/mocks"
	"transitdocs/internal/session"
	"transitdocs/internal/storage"
	storeMocks "transitdocs/internal/storage/mocks"
)

type stubImporter struct {
	auth      *analysis.AuthURL
	res       *analysis.ImportResult
	err       error
	calls     int
	lastState string
}

func (s *stubImporter) AuthURL(ctx context.Context, userID string) (*analysis.AuthURL, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.auth, nil
}

func (s *stubImporter) WaitAndImport(ctx context.Context, state string) (*analysis.ImportResult, error) {
	s.calls++
	s.lastState = state
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

func newTestIngestor(analyzer analysis.Client, store storage.Storage, repo *repoMocks.MockDocumentRepository, importer GmailImporter, pub events.Publisher) *ingestor {
	return &ingestor{
		analyzer: analyzer,
		store:    store,
		repo:     repo,
		importer: importer,
		pub:      pub,
		now:      func() time.Time { return time.UnixMilli(1700000000000).UTC() },
	}
}

func TestIngestor_Ingest_HappyPath(t *testing.T) {
	ctx := context.Background()
	sess := session.Static{User: "user-1", Dept: "Operations"}

	mAnalyzer := new(analysisMocks.MockClient)
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mPub := new(eventMocks.MockPublisher)

	mAnalyzer.On("AnalyzeDocument", mock.Anything, mock.Anything, "report.pdf", "classify").
		Return(&model.Analysis{
			Summary:        "```json\n\"Quarterly platform inspection\"\n```",
			Department:     "Engineering",
			Priority:       model.PriorityHigh,
			ActionRequired: "Schedule repair",
		}, nil)
	mStore.On("Put", mock.Anything, "user-1/1700000000000-report.pdf", mock.Anything, mock.MatchedBy(func(opt storage.PutObjectOptions) bool {
		return opt.ContentType == "application/pdf" && opt.Size == 4
	})).Return(storage.ObjectInfo{Key: "user-1/1700000000000-report.pdf"}, nil)
	mRepo.On("Create", mock.Anything, mock.MatchedBy(func(doc *model.Document) bool {
		return doc.UserID == "user-1" &&
			doc.Department == "Engineering" &&
			doc.AISummary == "Quarterly platform inspection" &&
			doc.Priority == model.PriorityHigh &&
			doc.Path == "user-1/1700000000000-report.pdf"
	})).Return(&model.Document{ID: "doc-1", Name: "report.pdf"}, nil)
	mPub.On("Publish", mock.Anything, mock.MatchedBy(func(e *events.Event) bool {
		return e.Type == events.DocumentCreated
	})).Return(nil)

	svc := newTestIngestor(mAnalyzer, mStore, mRepo, nil, mPub)
	res, err := svc.Ingest(ctx, sess, []FileInput{{Name: "report.pdf", MimeType: "application/pdf", Content: []byte("%PDF")}}, "classify")

	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, StageDone, res.Files[0].Stage)
	assert.Equal(t, "doc-1", res.Files[0].Document.ID)
	assert.Equal(t, "Quarterly platform inspection", res.Files[0].Preview)
	assert.Equal(t, "Uploaded 1 document(s) successfully. Documents analyzed and assigned to departments.", res.Message)
	mStore.AssertExpectations(t)
	mRepo.AssertExpectations(t)
}

func TestIngestor_Ingest_AnalysisFallback(t *testing.T) {
	ctx := context.Background()
	sess := session.Static{User: "user-1", Dept: "Finance"}

	mAnalyzer := new(analysisMocks.MockClient)
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mPub := new(eventMocks.MockPublisher)

	mAnalyzer.On("AnalyzeDocument", mock.Anything, mock.Anything, "report.pdf", "").
		Return(nil, errors.New("analysis service down"))
	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, nil)
	mRepo.On("Create", mock.Anything, mock.MatchedBy(func(doc *model.Document) bool {
		return doc.Department == "Finance" &&
			doc.Priority == model.PriorityMedium &&
			doc.ActionRequired == "Review required" &&
			doc.AISummary == "Document: report.pdf"
	})).Return(&model.Document{ID: "doc-1"}, nil)
	mPub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	svc := newTestIngestor(mAnalyzer, mStore, mRepo, nil, mPub)
	res, err := svc.Ingest(ctx, sess, []FileInput{{Name: "report.pdf", MimeType: "application/pdf", Content: []byte("x")}}, "")

	require.NoError(t, err)
	assert.Equal(t, StageDone, res.Files[0].Stage)
	mRepo.AssertExpectations(t)
}

func TestIngestor_Ingest_FallbackWithoutSessionDepartment(t *testing.T) {
	ctx := context.Background()
	sess := session.Static{User: "user-2"}

	mAnalyzer := new(analysisMocks.MockClient)
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mPub := new(eventMocks.MockPublisher)

	mAnalyzer.On("AnalyzeDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("timeout"))
	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, nil)
	mRepo.On("Create", mock.Anything, mock.MatchedBy(func(doc *model.Document) bool {
		return doc.Department == "Unknown"
	})).Return(&model.Document{ID: "doc-2"}, nil)
	mPub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	svc := newTestIngestor(mAnalyzer, mStore, mRepo, nil, mPub)
	res, err := svc.Ingest(ctx, sess, []FileInput{{Name: "notes.txt", MimeType: "text/plain", Content: []byte("x")}}, "")

	require.NoError(t, err)
	assert.Equal(t, StageDone, res.Files[0].Stage)
	mRepo.AssertExpectations(t)
}

func TestIngestor_Ingest_StorageFailure(t *testing.T) {
	ctx := context.Background()
	sess := session.Static{User: "user-1", Dept: "Operations"}

	mAnalyzer := new(analysisMocks.MockClient)
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mPub := new(eventMocks.MockPublisher)

	mAnalyzer.On("AnalyzeDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Analysis{Summary: "ok"}, nil)
	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, errors.New("bucket unreachable"))

	svc := newTestIngestor(mAnalyzer, mStore, mRepo, nil, mPub)
	res, err := svc.Ingest(ctx, sess, []FileInput{{Name: "a.pdf", MimeType: "application/pdf", Content: []byte("x")}}, "")

	require.NoError(t, err)
	assert.Equal(t, StageFailed, res.Files[0].Stage)
	var storageErr *StorageError
	require.ErrorAs(t, res.Files[0].Err, &storageErr)
	mRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestor_Ingest_RecordFailureLeavesPayload(t *testing.T) {
	ctx := context.Background()
	sess := session.Static{User: "user-1", Dept: "Operations"}

	mAnalyzer := new(analysisMocks.MockClient)
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mPub := new(eventMocks.MockPublisher)

	mAnalyzer.On("AnalyzeDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Analysis{Summary: "ok"}, nil)
	mStore.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(storage.ObjectInfo{}, nil)
	mRepo.On("Create", mock.Anything, mock.Anything).
		Return(nil, errors.New("db down"))

	svc := newTestIngestor(mAnalyzer, mStore, mRepo, nil, mPub)
	res, err := svc.Ingest(ctx, sess, []FileInput{{Name: "a.pdf", MimeType: "application/pdf", Content: []byte("x")}}, "")

	require.NoError(t, err)
	assert.Equal(t, StageFailed, res.Files[0].Stage)
	var persistErr *PersistenceError
	require.ErrorAs(t, res.Files[0].Err, &persistErr)
	// No rollback: the uploaded object stays put.
	mStore.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestIngestor_Ingest_PartialBatch(t *testing.T) {
	ctx := context.Background()
	sess := session.Static{User: "user-1", Dept: "Operations"}

	mAnalyzer := new(analysisMocks.MockClient)
	mStore := new(storeMocks.MockStorage)
	mRepo := new(repoMocks.MockDocumentRepository)
	mPub := new(eventMocks.MockPublisher)

	mAnalyzer.On("AnalyzeDocument", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&model.Analysis{Summary: "ok"}, nil)
	mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return key == fmt.Sprintf("user-1/1700000000000-%s", "good.pdf")
	}), mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, nil)
	mStore.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return key == fmt.Sprintf("user-1/1700000000000-%s", "bad.pdf")
	}), mock.Anything, mock.Anything).Return(storage.ObjectInfo{}, errors.New("boom"))
	mRepo.On("Create", mock.Anything, mock.Anything).Return(&model.Document{ID: "doc-1"}, nil)
	mPub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	svc := newTestIngestor(mAnalyzer, mStore, mRepo, nil, mPub)
	res, err := svc.Ingest(ctx, sess, []FileInput{
		{Name: "good.pdf", MimeType: "application/pdf", Content: []byte("x")},
		{Name: "bad.pdf", MimeType: "application/pdf", Content: []byte("x")},
	}, "")

	require.NoError(t, err)
	assert.Equal(t, StageDone, res.Files[0].Stage)
	assert.Equal(t, StageFailed, res.Files[1].Stage)
	assert.Equal(t, "Uploaded 1 of 2 documents; 1 failed.", res.Message)
}

func TestIngestor_Ingest_NoFiles(t *testing.T) {
	svc := newTestIngestor(nil, nil, nil, nil, events.NopPublisher{})
	_, err := svc.Ingest(context.Background(), session.Static{User: "u"}, nil, "")
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestIngestor_ImportFromGmail(t *testing.T) {
	ctx := context.Background()
	sess := session.Static{User: "user-1", Dept: "Operations"}

	mPub := new(eventMocks.MockPublisher)
	mPub.On("Publish", mock.Anything, mock.MatchedBy(func(e *events.Event) bool {
		return e.Type == events.GmailImportCompleted && e.Data["imported"] == 3
	})).Return(nil)
	importer := &stubImporter{res: &analysis.ImportResult{Imported: 3}}

	svc := newTestIngestor(nil, nil, nil, importer, mPub)
	res, err := svc.ImportFromGmail(ctx, sess, "state-abc")

	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 1, importer.calls)
	assert.Equal(t, "state-abc", importer.lastState)
	mPub.AssertExpectations(t)
}

func TestIngestor_ImportFromGmail_Error(t *testing.T) {
	importer := &stubImporter{err: errors.New("import failed")}
	mPub := new(eventMocks.MockPublisher)

	svc := newTestIngestor(nil, nil, nil, importer, mPub)
	_, err := svc.ImportFromGmail(context.Background(), session.Static{User: "u"}, "state-abc")

	require.Error(t, err)
	mPub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestIngestor_ImportFromGmail_StateRequired(t *testing.T) {
	svc := newTestIngestor(nil, nil, nil, &stubImporter{}, events.NopPublisher{})
	_, err := svc.ImportFromGmail(context.Background(), session.Static{User: "u"}, "")
	assert.ErrorIs(t, err, ErrStateRequired)
}

func TestIngestor_GmailAuthURL(t *testing.T) {
	importer := &stubImporter{auth: &analysis.AuthURL{URL: "https://accounts.google.com/o/oauth2/auth?x=1", State: "state-abc"}}
	svc := newTestIngestor(nil, nil, nil, importer, events.NopPublisher{})

	auth, err := svc.GmailAuthURL(context.Background(), session.Static{User: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "state-abc", auth.State)
}

func TestEscapeFilename(t *testing.T) {
	assert.Equal(t, "a_b_c", escapeFilename("a/b\\c"))
	assert.Equal(t, "plan Q3.pdf", escapeFilename("plan Q3.pdf"))
	assert.Equal(t, "x_y", escapeFilename("x\ny"))
}

func TestStorageKey(t *testing.T) {
	at := time.UnixMilli(1700000000000).UTC()
	assert.Equal(t, "user-1/1700000000000-a_b.pdf", storageKey("user-1", at, "a/b.pdf"))
}
