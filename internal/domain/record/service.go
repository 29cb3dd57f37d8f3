package record

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsba/emr/internal/domain/patient"
	"github.com/hsba/emr/internal/platform/blobstore"
	"github.com/hsba/emr/internal/platform/ids"
	"github.com/hsba/emr/internal/platform/pdfexport"
)

var ErrPatientNotFound = errors.New("patient not found")

// Topic is the change-event topic for records.
const Topic = "records"

const (
	EventCreated = "record.created"
	EventUpdated = "record.updated"
	EventDeleted = "record.deleted"
)

// Notifier receives change events after a successful write.
type Notifier interface {
	Notify(topic, kind string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, any) {}

// PatientLookup resolves the patient a new record is created for.
type PatientLookup interface {
	Get(ctx context.Context, id string) (*patient.Patient, error)
}

type Service struct {
	repo     Repository
	patients PatientLookup
	blobs    blobstore.Store
	exporter *pdfexport.Exporter
	notifier Notifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, patients PatientLookup, blobs blobstore.Store, exporter *pdfexport.Exporter, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		patients: patients,
		blobs:    blobs,
		exporter: exporter,
		notifier: nopNotifier{},
		logger:   logger,
		now:      time.Now,
	}
}

// SetNotifier replaces the change-event sink. A nil n disables events.
func (s *Service) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Blobs exposes the attachment store for streaming downloads.
func (s *Service) Blobs() blobstore.Store {
	return s.blobs
}

// Create opens a record for patientID. The patient's identity is copied
// into the record; draft supplies the rest of the form and may be nil.
func (s *Service) Create(ctx context.Context, patientID, recordType string, draft *Record) (*Record, error) {
	if recordType == "" {
		recordType = TypeInternal
	}
	if !ValidType(recordType) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, recordType)
	}

	p, err := s.patients.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, patient.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
		}
		return nil, fmt.Errorf("lookup patient: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}

	now := s.now()
	r := &Record{}
	if draft != nil {
		*r = *draft
	}
	r.ID = ids.Next(ids.PrefixRecord, now)
	r.PatientID = p.ID
	r.PatientName = p.FullName
	r.DOB = p.DOB
	r.Age = p.Age
	r.Gender = p.Gender
	r.Type = recordType
	r.Documents = []Document{}
	if r.AdmissionDate == "" {
		r.AdmissionDate = now.Format("2006-01-02")
	}
	if age, ok := patient.AgeFromDOB(r.DOB, now); ok {
		r.Age = age
	}
	r.CreatedAt = now
	r.UpdatedAt = now

	if r, err = Reduce(r, EnsureDefaultTransfer{}, now); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	s.logger.Info().Str("record_id", r.ID).Str("patient_id", p.ID).Str("type", r.Type).Msg("record created")
	s.notifier.Notify(Topic, EventCreated, r)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// GetForEdit returns the record ready for the edit form. The default
// transfer row is not stored until the next write.
func (s *Service) GetForEdit(ctx context.Context, id string) (*Record, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return Reduce(r, EnsureDefaultTransfer{}, s.now())
}

func (s *Service) List(ctx context.Context, query, filterType string) ([]*Record, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return Filter(all, query, filterType), nil
}

// ListByPatient returns a patient's records, newest admission first.
func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*Record, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list records of %s: %w", patientID, err)
	}
	out := make([]*Record, len(items))
	copy(out, items)
	SortByAdmissionDesc(out)
	return out, nil
}

// Replace stores r as the new content of record id. Identity, timestamps
// and documents are kept from the stored record.
func (s *Service) Replace(ctx context.Context, id string, r *Record) (*Record, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidRecord)
	}
	if r.Type != "" && !ValidType(r.Type) {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, r.Type)
	}
	updated, err := s.repo.Update(ctx, id, func(cur *Record) (*Record, error) {
		now := s.now()
		next := *r
		next.ID = cur.ID
		next.PatientID = cur.PatientID
		next.Documents = cur.Documents
		next.CreatedAt = cur.CreatedAt
		next.UpdatedAt = now
		if next.Type == "" {
			next.Type = cur.Type
		}
		if age, ok := patient.AgeFromDOB(next.DOB, now); ok {
			next.Age = age
		}
		return &next, nil
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(Topic, EventUpdated, updated)
	return updated, nil
}

// Apply runs actions in order against record id and stores the result only
// if every action succeeds. Blobs of documents removed by the actions are
// revoked once the new state is stored.
func (s *Service) Apply(ctx context.Context, id string, actions []Action) (*Record, error) {
	if len(actions) == 0 {
		return nil, fmt.Errorf("%w: no actions", ErrInvalidRecord)
	}
	var before []string
	updated, err := s.repo.Update(ctx, id, func(cur *Record) (*Record, error) {
		before = cur.BlobIDs()
		now := s.now()
		next := cur
		for _, a := range actions {
			var err error
			if next, err = Reduce(next, a, now); err != nil {
				return nil, err
			}
		}
		if next == cur {
			cp := *cur
			next = &cp
		}
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	s.revoke(ctx, id, orphaned(before, updated.BlobIDs())...)
	s.notifier.Notify(Topic, EventUpdated, updated)
	return updated, nil
}

// Delete removes the record and revokes every blob it referenced. The
// patient is not touched.
func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.revoke(ctx, id, removed.BlobIDs()...)
	s.logger.Info().Str("record_id", id).Int("documents", len(removed.Documents)).Msg("record deleted")
	s.notifier.Notify(Topic, EventDeleted, map[string]string{"id": id, "patientId": removed.PatientID})
	return nil
}

// ExportPDF renders the client snapshot of record id as a paginated A4 PDF.
func (s *Service) ExportPDF(ctx context.Context, id string, snapshot io.Reader) (*pdfexport.Result, string, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, "", err
	}
	res, err := s.exporter.Export(ctx, id, snapshot, pdfexport.MultiPage)
	if err != nil {
		return nil, "", err
	}
	return res, pdfexport.RecordFileName(id), nil
}

// Upload is an attachment sent by the client.
type Upload struct {
	Name        string
	Type        string
	Date        string
	ContentType string
	Content     io.Reader
}

// UploadDocument stores the file and attaches it to record id under a
// generated file name.
func (s *Service) UploadDocument(ctx context.Context, recordID string, u Upload) (*Document, error) {
	if strings.TrimSpace(u.Type) == "" {
		return nil, fmt.Errorf("%w: document type is required", ErrInvalidRecord)
	}
	r, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	age := 0
	if strings.TrimSpace(r.PatientName) == "" {
		age = r.Age
	}
	fileName := pdfexport.AttachmentFileName(r.ID, u.Type, r.PatientName, age, now)
	if ext := extensionFor(u.ContentType); ext != ".pdf" {
		fileName = strings.TrimSuffix(fileName, ".pdf") + ext
	}
	name := u.Name
	if strings.TrimSpace(name) == "" {
		name = u.Type
	}
	date := u.Date
	if date == "" {
		date = now.Format("2006-01-02")
	}
	return s.attach(ctx, recordID, Document{Name: name, Type: u.Type, FileName: fileName, Date: date}, u.ContentType, u.Content)
}

// AttachGenerated attaches a PDF produced on the server, keeping the
// structured input in data so the form can be re-edited.
func (s *Service) AttachGenerated(ctx context.Context, recordID string, doc Document, pdf []byte) (*Document, error) {
	if doc.Date == "" {
		doc.Date = s.now().Format("2006-01-02")
	}
	return s.attach(ctx, recordID, doc, "application/pdf", bytes.NewReader(pdf))
}

func (s *Service) attach(ctx context.Context, recordID string, doc Document, contentType string, content io.Reader) (*Document, error) {
	now := s.now()
	doc.ID = ids.Next(ids.PrefixDocument, now)

	meta, err := s.blobs.Put(ctx, blobstore.Meta{FileName: doc.FileName, ContentType: contentType, RecordID: recordID}, content)
	if err != nil {
		return nil, err
	}
	doc.BlobID = meta.ID
	doc.URL = blobstore.URL(recordID, doc.ID)

	updated, err := s.repo.Update(ctx, recordID, func(cur *Record) (*Record, error) {
		next, err := Reduce(cur, AddDocument{Document: doc}, now)
		if err != nil {
			return nil, err
		}
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		s.revoke(ctx, recordID, meta.ID)
		return nil, err
	}
	s.logger.Info().Str("record_id", recordID).Str("document_id", doc.ID).Str("type", doc.Type).Int64("bytes", meta.Size).Msg("document attached")
	s.notifier.Notify(Topic, EventUpdated, updated)
	return &doc, nil
}

// ReplaceDocumentFile swaps the file behind document docID for pdf and
// stores data as its new structured input. The previous blob is revoked.
func (s *Service) ReplaceDocumentFile(ctx context.Context, recordID, docID, fileName string, data json.RawMessage, pdf []byte) (*Document, error) {
	meta, err := s.blobs.Put(ctx, blobstore.Meta{FileName: fileName, ContentType: "application/pdf", RecordID: recordID}, bytes.NewReader(pdf))
	if err != nil {
		return nil, err
	}

	var old string
	var doc Document
	updated, err := s.repo.Update(ctx, recordID, func(cur *Record) (*Record, error) {
		i := cur.DocumentIndex(docID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
		}
		now := s.now()
		docs := make([]Document, len(cur.Documents))
		copy(docs, cur.Documents)
		old = docs[i].BlobID
		docs[i].BlobID = meta.ID
		docs[i].FileName = fileName
		docs[i].Data = data
		docs[i].Date = now.Format("2006-01-02")
		doc = docs[i]
		next := withDocuments(cur, docs)
		next.UpdatedAt = now
		return next, nil
	})
	if err != nil {
		s.revoke(ctx, recordID, meta.ID)
		return nil, err
	}
	s.revoke(ctx, recordID, old)
	s.notifier.Notify(Topic, EventUpdated, updated)
	return &doc, nil
}

func (s *Service) GetDocument(ctx context.Context, recordID, docID string) (*Document, error) {
	r, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	i := r.DocumentIndex(docID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, docID)
	}
	doc := r.Documents[i]
	return &doc, nil
}

// PatchDocument edits document metadata such as its name or type.
func (s *Service) PatchDocument(ctx context.Context, recordID, docID string, patch map[string]any) (*Document, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: empty patch", ErrInvalidRecord)
	}
	updated, err := s.Apply(ctx, recordID, []Action{UpdateDocument{ID: docID, Patch: patch}})
	if err != nil {
		return nil, err
	}
	doc := updated.Documents[updated.DocumentIndex(docID)]
	return &doc, nil
}

// DeleteDocument detaches docID and revokes its blob.
func (s *Service) DeleteDocument(ctx context.Context, recordID, docID string) error {
	_, err := s.Apply(ctx, recordID, []Action{RemoveDocument{ID: docID}})
	return err
}

// revoke drops blobs that no stored document references any more. A
// failure leaves an orphaned blob, which is logged but not returned.
func (s *Service) revoke(ctx context.Context, recordID string, blobIDs ...string) {
	if len(blobIDs) == 0 {
		return
	}
	if err := blobstore.RevokeAll(ctx, s.blobs, blobIDs...); err != nil {
		s.logger.Error().Err(err).Str("record_id", recordID).Strs("blobs", blobIDs).Msg("blob revocation failed")
	}
}

// orphaned returns the ids in before that are missing from after.
func orphaned(before, after []string) []string {
	keep := make(map[string]bool, len(after))
	for _, id := range after {
		keep[id] = true
	}
	var out []string
	for _, id := range before {
		if !keep[id] {
			out = append(out, id)
		}
	}
	return out
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	}
	return ".pdf"
}
