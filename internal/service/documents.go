package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"transitdocs/internal/analysis"
	"transitdocs/internal/events"
	"transitdocs/internal/model"
	"transitdocs/internal/repository"
	"transitdocs/internal/sanitize"
	"transitdocs/internal/session"
	"transitdocs/internal/storage"
	"transitdocs/pkg/logger"
)

// viewURLTTL is the lifetime of a signed download link handed to callers
// when the bucket has no public form.
const viewURLTTL = 5 * time.Minute

// maxReanalyzeBytes caps how much payload Reanalyze will pull back through
// the view URL before re-submitting it for analysis.
const maxReanalyzeBytes = 32 << 20

// DocumentsService defines the read-side use cases over stored documents.
type DocumentsService interface {
	// Load returns the scope's documents, newest first and re-ordered by
	// priority, with records whose storage payload has gone missing hidden.
	Load(ctx context.Context, sess session.Session, scope model.Scope) ([]model.Document, error)

	// ToggleRead flips the read flag and returns the updated record.
	ToggleRead(ctx context.Context, id string) (*model.Document, error)

	// Delete removes the payload from storage first, then the record. If the
	// payload removal fails the record is kept so the document stays listed.
	Delete(ctx context.Context, id string) error

	// Reanalyze re-fetches the payload, submits it for fresh analysis and
	// replaces the AI-derived tuple on the record.
	Reanalyze(ctx context.Context, id string) (*model.Document, error)

	// ViewURL resolves a fetchable URL for the document's payload: the public
	// form when available, otherwise a time-limited signed link.
	ViewURL(ctx context.Context, id string) (string, error)
}

type documentsService struct {
	repo     repository.DocumentRepository
	store    storage.Storage
	analyzer analysis.Client
	pub      events.Publisher
	fetch    *http.Client

	mu   sync.RWMutex
	view map[string][]model.Document
}

// NewDocumentsService constructs the document read-side service.
func NewDocumentsService(repo repository.DocumentRepository, store storage.Storage, analyzer analysis.Client, pub events.Publisher) DocumentsService {
	return &documentsService{
		repo:     repo,
		store:    store,
		analyzer: analyzer,
		pub:      pub,
		fetch:    &http.Client{Timeout: 30 * time.Second},
		view:     make(map[string][]model.Document),
	}
}

func (s *documentsService) Load(ctx context.Context, sess session.Session, scope model.Scope) ([]model.Document, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}

	var (
		items []model.Document
		err   error
	)
	switch scope {
	case model.ScopeDepartment:
		items, err = s.repo.ListByDepartment(ctx, sess.Department())
	default:
		items, err = s.repo.ListByUser(ctx, sess.UserID())
	}
	if err != nil {
		return nil, &PersistenceError{Op: "list documents", Err: err}
	}
	// A caller that went away mid-fetch must not have a stale answer
	// installed as the current view.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	items = s.reconcile(ctx, items)
	sortByPriority(items)

	// Cache a copy: the returned slice is read by the caller without the
	// service lock, so it must never share a backing array with the view
	// that ToggleRead and Delete mutate.
	cached := make([]model.Document, len(items))
	copy(cached, items)
	s.mu.Lock()
	s.view[viewKey(sess, scope)] = cached
	s.mu.Unlock()
	return items, nil
}

// reconcile drops records whose storage payload no longer exists. A failed
// existence check keeps the record: a document is only hidden once storage
// positively reports it gone.
func (s *documentsService) reconcile(ctx context.Context, items []model.Document) []model.Document {
	kept := items[:0]
	for _, d := range items {
		ok, err := s.store.Exists(ctx, d.Path)
		if err != nil {
			logger.Warn(ctx, "storage existence check failed, keeping record", "document_id", d.ID, "error", err)
			kept = append(kept, d)
			continue
		}
		if !ok {
			logger.Warn(ctx, "hiding record with missing payload", "document_id", d.ID, "path", d.Path)
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// sortByPriority re-orders a newest-first slice so High outranks Medium
// outranks Low, with unrecognized labels last. The sort is stable, so rows
// sharing a priority keep their newest-first order.
func sortByPriority(items []model.Document) {
	sort.SliceStable(items, func(i, j int) bool {
		return model.PriorityRank(items[i].Priority) < model.PriorityRank(items[j].Priority)
	})
}

func (s *documentsService) ToggleRead(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	flipped := !doc.IsRead
	// Flip the cached view immediately so concurrent readers see the new
	// state; revert if the write fails.
	s.setViewRead(id, flipped)
	if err := s.repo.SetRead(ctx, id, flipped); err != nil {
		s.setViewRead(id, doc.IsRead)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "set read", Err: err}
	}
	doc.IsRead = flipped
	return doc, nil
}

func (s *documentsService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	doc, err := s.findByID(ctx, id)
	if err != nil {
		return err
	}
	// Payload first. If the object cannot be removed the record survives, so
	// the document remains listed rather than silently leaking storage.
	if err := s.store.Delete(ctx, doc.Path); err != nil {
		return &StorageError{Op: "delete", Key: doc.Path, Err: err}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return &PersistenceError{Op: "delete document", Err: err}
	}
	s.dropFromView(id)

	s.publish(ctx, events.DocumentDeleted, map[string]any{
		"document_id": doc.ID,
		"user_id":     doc.UserID,
	})
	return nil
}

func (s *documentsService) Reanalyze(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}

	content, err := s.payload(ctx, doc.Path)
	if err != nil {
		return nil, err
	}

	a, err := s.analyzer.AnalyzeDocument(ctx, encodeDataURL(doc.MimeType, content), doc.Name, "")
	if err != nil {
		return nil, err
	}

	// On re-analysis an empty field keeps its current stored value rather
	// than reverting to a fallback.
	next := model.Analysis{
		Summary:        sanitize.Summary(a.Summary, sanitize.Lenient),
		Department:     a.Department,
		Priority:       a.Priority,
		ActionRequired: a.ActionRequired,
	}
	if next.Summary == "" {
		next.Summary = doc.AISummary
	}
	if next.Department == "" {
		next.Department = doc.Department
	}
	if next.Priority == "" {
		next.Priority = doc.Priority
	}
	if next.ActionRequired == "" {
		next.ActionRequired = doc.ActionRequired
	}

	if err := s.repo.UpdateAnalysis(ctx, id, next); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "update analysis", Err: err}
	}

	doc.AISummary = next.Summary
	doc.Department = next.Department
	doc.Priority = next.Priority
	doc.ActionRequired = next.ActionRequired

	s.publish(ctx, events.DocumentReanalyzed, map[string]any{
		"document_id": doc.ID,
		"priority":    doc.Priority,
	})
	return doc, nil
}

func (s *documentsService) ViewURL(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", ErrIDRequired
	}
	doc, err := s.findByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.resolveURL(ctx, doc.Path)
}

// resolveURL prefers the bucket's public form and falls back to a signed
// link. A missing bucket or object is reported distinctly from a transient
// storage failure.
func (s *documentsService) resolveURL(ctx context.Context, path string) (string, error) {
	if url, ok := s.store.PublicURL(path); ok {
		return url, nil
	}
	exists, err := s.store.Exists(ctx, path)
	if err != nil {
		if storage.IsBucketNotFound(err) {
			return "", &StorageError{Op: "view", Key: path, Message: "storage bucket does not exist", NotFound: true, Err: err}
		}
		return "", &StorageError{Op: "view", Key: path, Err: err}
	}
	if !exists {
		return "", &StorageError{Op: "view", Key: path, Message: "document payload not found in storage", NotFound: true}
	}
	url, err := s.store.PresignGet(ctx, path, viewURLTTL)
	if err != nil {
		return "", &StorageError{Op: "presign", Key: path, Err: err}
	}
	return url, nil
}

// payload reads the document's bytes for re-analysis: through the public URL
// when the bucket serves one, otherwise straight from storage (a signed URL
// would only point back at ourselves).
func (s *documentsService) payload(ctx context.Context, path string) ([]byte, error) {
	if url, ok := s.store.PublicURL(path); ok {
		content, err := s.fetchPayload(ctx, url)
		if err != nil {
			return nil, &StorageError{Op: "fetch", Key: path, Err: err}
		}
		return content, nil
	}
	rc, _, err := s.store.Get(ctx, path)
	if err != nil {
		if storage.IsBucketNotFound(err) {
			return nil, &StorageError{Op: "fetch", Key: path, Message: "storage bucket does not exist", NotFound: true, Err: err}
		}
		return nil, &StorageError{Op: "fetch", Key: path, Err: err}
	}
	defer rc.Close()
	content, err := io.ReadAll(io.LimitReader(rc, maxReanalyzeBytes))
	if err != nil {
		return nil, &StorageError{Op: "fetch", Key: path, Err: err}
	}
	return content, nil
}

func (s *documentsService) fetchPayload(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.fetch.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxReanalyzeBytes))
}

func (s *documentsService) findByID(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, &PersistenceError{Op: "find document", Err: err}
	}
	return doc, nil
}

func (s *documentsService) setViewRead(id string, isRead bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, items := range s.view {
		for i := range items {
			if items[i].ID == id {
				items[i].IsRead = isRead
			}
		}
		s.view[key] = items
	}
}

func (s *documentsService) dropFromView(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, items := range s.view {
		kept := items[:0]
		for _, d := range items {
			if d.ID != id {
				kept = append(kept, d)
			}
		}
		s.view[key] = kept
	}
}

func (s *documentsService) publish(ctx context.Context, t events.EventType, data map[string]any) {
	if err := s.pub.Publish(ctx, events.New(t, "documents", data)); err != nil {
		logger.Warn(ctx, "event publish failed", "type", string(t), "error", err)
	}
}

func viewKey(sess session.Session, scope model.Scope) string {
	if scope == model.ScopeDepartment {
		return string(scope) + ":" + sess.Department()
	}
	return string(scope) + ":" + sess.UserID()
}
