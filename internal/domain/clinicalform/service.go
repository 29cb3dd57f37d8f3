package clinicalform

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsba/emr/internal/domain/record"
	"github.com/hsba/emr/internal/platform/pdfexport"
)

// Records is the part of the record service forms are stored through.
type Records interface {
	Get(ctx context.Context, id string) (*record.Record, error)
	GetDocument(ctx context.Context, recordID, docID string) (*record.Document, error)
	AttachGenerated(ctx context.Context, recordID string, doc record.Document, pdf []byte) (*record.Document, error)
	ReplaceDocumentFile(ctx context.Context, recordID, docID, fileName string, data json.RawMessage, pdf []byte) (*record.Document, error)
}

type Service struct {
	records  Records
	exporter *pdfexport.Exporter
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(records Records, exporter *pdfexport.Exporter, logger zerolog.Logger) *Service {
	return &Service{records: records, exporter: exporter, logger: logger, now: time.Now}
}

// render checks data and turns the snapshot into a one-page PDF. The
// export key is per record and kind, so two different forms of a record
// can be saved at once but not the same one twice.
func (s *Service) render(ctx context.Context, r *record.Record, kind Kind, data []byte, snapshot io.Reader) (json.RawMessage, []byte, string, error) {
	normalized, err := kind.Normalize(data)
	if err != nil {
		return nil, nil, "", err
	}
	res, err := s.exporter.Export(ctx, r.ID+":"+kind.Name, snapshot, pdfexport.SinglePage)
	if err != nil {
		return nil, nil, "", err
	}
	return normalized, res.PDF, pdfexport.FormFileName(kind.FilePrefix, r.PatientName, s.now()), nil
}

// Create saves a new form on record recordID.
func (s *Service) Create(ctx context.Context, recordID string, kind Kind, data []byte, snapshot io.Reader) (*record.Document, error) {
	r, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	normalized, pdf, fileName, err := s.render(ctx, r, kind, data, snapshot)
	if err != nil {
		return nil, err
	}
	doc, err := s.records.AttachGenerated(ctx, recordID, record.Document{
		Name:     kind.Title,
		Type:     kind.DocumentType,
		FileName: fileName,
		Data:     normalized,
	}, pdf)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("record_id", recordID).Str("form", kind.Name).Str("document_id", doc.ID).Msg("clinical form saved")
	return doc, nil
}

// Regenerate re-renders an existing form document from edited data. The
// document keeps its id; the previous file is revoked.
func (s *Service) Regenerate(ctx context.Context, recordID, docID string, data []byte, snapshot io.Reader) (*record.Document, error) {
	r, err := s.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	existing, err := s.records.GetDocument(ctx, recordID, docID)
	if err != nil {
		return nil, err
	}
	kind, err := KindByDocumentType(existing.Type)
	if err != nil {
		return nil, err
	}
	normalized, pdf, fileName, err := s.render(ctx, r, kind, data, snapshot)
	if err != nil {
		return nil, err
	}
	doc, err := s.records.ReplaceDocumentFile(ctx, recordID, docID, fileName, normalized, pdf)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("record_id", recordID).Str("form", kind.Name).Str("document_id", docID).Msg("clinical form regenerated")
	return doc, nil
}

// Kinds lists the supported forms.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}
