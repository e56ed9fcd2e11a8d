package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"transitdocs/internal/analysis"
	"transitdocs/internal/events"
	"transitdocs/internal/model"
	"transitdocs/internal/repository"
	"transitdocs/internal/sanitize"
	"transitdocs/internal/session"
	"transitdocs/internal/storage"
	"transitdocs/pkg/logger"
)

// Stage labels the progress of a single file through the pipeline. Each file
// advances independently; a failure freezes that file at its current stage
// without touching the rest of the batch.
type Stage string

const (
	StageSelected   Stage = "selected"
	StageEncoding   Stage = "encoding"
	StageAnalyzing  Stage = "analyzing"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Fallback metadata applied when the analysis service is unreachable or
// returns empty fields. Documents stay usable without analysis.
const (
	FallbackDepartment = "Unknown"
	FallbackPriority   = model.PriorityMedium
	FallbackAction     = "Review required"
)

// maxConcurrentFiles bounds the per-batch fan-out so one large batch cannot
// hold that many analysis calls in flight at once.
const maxConcurrentFiles = 4

// FileInput is one file selected for ingestion.
type FileInput struct {
	Name     string
	MimeType string
	Content  []byte
}

// FileResult reports the outcome of one file. Stage is the stage the file
// reached; on failure Err carries the cause and Document is nil. Preview is
// an aggressively cleaned one-liner safe for progress display, produced with
// the strict sanitizer variant.
type FileResult struct {
	Name     string          `json:"name"`
	Stage    Stage           `json:"stage"`
	Preview  string          `json:"preview,omitempty"`
	Document *model.Document `json:"document,omitempty"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// IngestResult is the batch outcome: per-file results in input order plus a
// human-readable summary message.
type IngestResult struct {
	Files   []FileResult `json:"files"`
	Message string       `json:"message"`
}

// GmailImporter is the bridge capability the pipeline needs for mail-sourced
// ingestion. *gmail.Bridge satisfies it.
type GmailImporter interface {
	AuthURL(ctx context.Context, userID string) (*analysis.AuthURL, error)
	WaitAndImport(ctx context.Context, state string) (*analysis.ImportResult, error)
}

// Ingestor runs the upload pipeline: encode, analyze, sanitize, persist.
type Ingestor interface {
	// Ingest runs every file through the pipeline concurrently and reports
	// per-file outcomes. A batch never fails as a whole; callers inspect the
	// individual results.
	Ingest(ctx context.Context, sess session.Session, files []FileInput, instruction string) (*IngestResult, error)

	// GmailAuthURL starts a mail-sourced ingestion by fetching the consent
	// URL and state token for the user.
	GmailAuthURL(ctx context.Context, sess session.Session) (*analysis.AuthURL, error)

	// ImportFromGmail waits for the state's consent to complete (bounded by
	// the bridge's ceiling) and then imports matching attachments server-side.
	ImportFromGmail(ctx context.Context, sess session.Session, state string) (*analysis.ImportResult, error)
}

type ingestor struct {
	analyzer analysis.Client
	store    storage.Storage
	repo     repository.DocumentRepository
	importer GmailImporter
	pub      events.Publisher
	now      func() time.Time
}

// NewIngestor constructs the upload pipeline.
func NewIngestor(analyzer analysis.Client, store storage.Storage, repo repository.DocumentRepository, importer GmailImporter, pub events.Publisher) Ingestor {
	return &ingestor{
		analyzer: analyzer,
		store:    store,
		repo:     repo,
		importer: importer,
		pub:      pub,
		now:      time.Now,
	}
}

func (s *ingestor) Ingest(ctx context.Context, sess session.Session, files []FileInput, instruction string) (*IngestResult, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	results := make([]FileResult, len(files))
	g := &errgroup.Group{}
	g.SetLimit(maxConcurrentFiles)
	for i := range files {
		i := i
		g.Go(func() error {
			results[i] = s.ingestOne(ctx, sess, files[i], instruction)
			return nil
		})
	}
	// Goroutines never return errors; per-file failures live in results.
	_ = g.Wait()

	done := 0
	var firstErr error
	for i := range results {
		if results[i].Stage == StageDone {
			done++
		} else if firstErr == nil {
			firstErr = results[i].Err
		}
		if results[i].Err != nil {
			results[i].Error = results[i].Err.Error()
		}
	}

	return &IngestResult{Files: results, Message: batchMessage(done, len(files), firstErr)}, nil
}

// ingestOne walks one file through the stages. The returned result records
// the furthest stage reached.
func (s *ingestor) ingestOne(ctx context.Context, sess session.Session, f FileInput, instruction string) FileResult {
	res := FileResult{Name: f.Name, Stage: StageSelected}

	res.Stage = StageEncoding
	dataURL := encodeDataURL(f.MimeType, f.Content)

	res.Stage = StageAnalyzing
	a, raw := s.analyze(ctx, sess, dataURL, f.Name, instruction)
	res.Preview = sanitize.Summary(raw, sanitize.Strict)
	if res.Preview == "" {
		res.Preview = a.Summary
	}

	res.Stage = StagePersisting
	createdAt := s.now().UTC()
	key := storageKey(sess.UserID(), createdAt, f.Name)
	_, err := s.store.Put(ctx, key, bytes.NewReader(f.Content), storage.PutObjectOptions{
		Size:        int64(len(f.Content)),
		ContentType: f.MimeType,
		Metadata: map[string]string{
			"original-filename": f.Name,
		},
	})
	if err != nil {
		res.Stage = StageFailed
		res.Err = &StorageError{Op: "put", Key: key, Err: err}
		return res
	}

	doc := &model.Document{
		ID:             uuid.New().String(),
		UserID:         sess.UserID(),
		Department:     a.Department,
		Name:           f.Name,
		Path:           key,
		MimeType:       f.MimeType,
		SizeBytes:      int64(len(f.Content)),
		AISummary:      a.Summary,
		Priority:       a.Priority,
		ActionRequired: a.ActionRequired,
		IsRead:         false,
		CreatedAt:      createdAt,
	}
	// The uploaded object is intentionally left in place when the record
	// insert fails; a later listing reconciles records against storage, not
	// the other way around.
	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		res.Stage = StageFailed
		res.Err = &PersistenceError{Op: "create document", Err: err}
		return res
	}

	s.publish(ctx, events.DocumentCreated, map[string]any{
		"document_id": stored.ID,
		"user_id":     stored.UserID,
		"department":  stored.Department,
		"name":        stored.Name,
	})

	res.Stage = StageDone
	res.Document = stored
	return res
}

// analyze calls the analysis service and normalizes its answer, also
// returning the raw summary for preview rendering. Any failure degrades to
// the fallback tuple so the upload still completes.
func (s *ingestor) analyze(ctx context.Context, sess session.Session, dataURL, name, instruction string) (model.Analysis, string) {
	a, err := s.analyzer.AnalyzeDocument(ctx, dataURL, name, instruction)
	if err != nil {
		logger.Warn(ctx, "analysis unavailable, applying fallback metadata", "file", name, "error", err)
		a = &model.Analysis{}
	}
	return normalizeAnalysis(*a, sess.Department(), name), a.Summary
}

// normalizeAnalysis fills empty fields of the tuple one by one: an analysis
// answer that omits the department must not wipe out the uploader's own.
func normalizeAnalysis(a model.Analysis, sessionDept, name string) model.Analysis {
	a.Summary = sanitize.Summary(a.Summary, sanitize.Lenient)
	if a.Summary == "" {
		a.Summary = "Document: " + name
	}
	if a.Department == "" {
		a.Department = sessionDept
	}
	if a.Department == "" {
		a.Department = FallbackDepartment
	}
	if a.Priority == "" {
		a.Priority = FallbackPriority
	}
	if a.ActionRequired == "" {
		a.ActionRequired = FallbackAction
	}
	return a
}

func (s *ingestor) GmailAuthURL(ctx context.Context, sess session.Session) (*analysis.AuthURL, error) {
	return s.importer.AuthURL(ctx, sess.UserID())
}

func (s *ingestor) ImportFromGmail(ctx context.Context, sess session.Session, state string) (*analysis.ImportResult, error) {
	if state == "" {
		return nil, ErrStateRequired
	}
	res, err := s.importer.WaitAndImport(ctx, state)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.GmailImportCompleted, map[string]any{
		"user_id":  sess.UserID(),
		"imported": res.Imported,
	})
	return res, nil
}

func (s *ingestor) publish(ctx context.Context, t events.EventType, data map[string]any) {
	if err := s.pub.Publish(ctx, events.New(t, "ingest", data)); err != nil {
		logger.Warn(ctx, "event publish failed", "type", string(t), "error", err)
	}
}

// storageKey builds the object key for a new upload. The timestamp prefix
// keeps same-named uploads from colliding; path-breaking characters in the
// filename are flattened so the key stays a single path segment per part.
func storageKey(userID string, at time.Time, name string) string {
	return fmt.Sprintf("%s/%d-%s", userID, at.UnixMilli(), escapeFilename(name))
}

// escapeFilename replaces separators and control characters so a hostile
// filename cannot inject extra key segments.
func escapeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r < 0x20 {
			return '_'
		}
		return r
	}, name)
}

func encodeDataURL(mimeType string, content []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content)
}

func batchMessage(done, total int, firstErr error) string {
	switch {
	case done == total:
		return fmt.Sprintf("Uploaded %d document(s) successfully. Documents analyzed and assigned to departments.", total)
	case done == 0:
		return fmt.Sprintf("Upload failed: %v", firstErr)
	default:
		return fmt.Sprintf("Uploaded %d of %d documents; %d failed.", done, total, total-done)
	}
}
