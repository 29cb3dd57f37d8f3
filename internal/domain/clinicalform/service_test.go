package clinicalform

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hsba/emr/internal/domain/patient"
	"github.com/hsba/emr/internal/domain/record"
	"github.com/hsba/emr/internal/platform/blobstore"
	"github.com/hsba/emr/internal/platform/inflight"
	"github.com/hsba/emr/internal/platform/pdfexport"
)

type fixture struct {
	svc     *Service
	records *record.Service
	blobs   *blobstore.MemoryStore
	rec     *record.Record
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	patients := patient.NewService(patient.NewMemoryRepo(), zerolog.Nop())
	p, err := patients.Create(ctx, &patient.Patient{FullName: "Nguyễn Văn An", DOB: "1980-01-01"})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}

	exporter := pdfexport.NewExporter(inflight.NewMemoryGuard(), zerolog.Nop())
	blobs := blobstore.NewMemoryStore(1 << 20)
	records := record.NewService(record.NewMemoryRepo(), patients, blobs, exporter, zerolog.Nop())
	r, err := records.Create(ctx, p.ID, record.TypeInternal, nil)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	svc := NewService(records, exporter, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC) }
	return &fixture{svc: svc, records: records, blobs: blobs, rec: r}
}

func snapshotPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 20, 28))
	for y := 0; y < 28; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.NRGBA{B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestService_CreateXRay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Create(ctx, f.rec.ID, XRay, []byte(`{"request":"Chụp phổi thẳng","conclusion":"Bình thường"}`), bytes.NewReader(snapshotPNG(t)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.FileName != "XQuang_NguyenVanAn_20250301143000.pdf" {
		t.Errorf("unexpected file name %q", doc.FileName)
	}
	if doc.Type != "xquang" || doc.Name != "Phiếu X-Quang" {
		t.Errorf("unexpected document %+v", doc)
	}
	var data XRayForm
	if err := json.Unmarshal(doc.Data, &data); err != nil || data.Conclusion != "Bình thường" {
		t.Errorf("structured data not kept: %s (%v)", doc.Data, err)
	}

	rc, meta, err := f.blobs.Open(ctx, doc.BlobID)
	if err != nil {
		t.Fatalf("blob missing: %v", err)
	}
	defer rc.Close()
	if meta.ContentType != "application/pdf" {
		t.Errorf("unexpected content type %q", meta.ContentType)
	}
}

func TestService_CreateErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, "REC404", XRay, []byte(`{"request":"x"}`), bytes.NewReader(snapshotPNG(t))); !errors.Is(err, record.ErrNotFound) {
		t.Errorf("expected record.ErrNotFound, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.rec.ID, XRay, []byte(`{}`), bytes.NewReader(snapshotPNG(t))); !errors.Is(err, ErrInvalidForm) {
		t.Errorf("expected ErrInvalidForm, got %v", err)
	}
	if _, err := f.svc.Create(ctx, f.rec.ID, Hematology, []byte(`{"request":"CTM"}`), nil); !errors.Is(err, pdfexport.ErrSnapshotMissing) {
		t.Errorf("expected ErrSnapshotMissing, got %v", err)
	}
	if f.blobs.Len() != 0 {
		t.Errorf("failed saves must not leave blobs, have %d", f.blobs.Len())
	}
}

func TestService_Regenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Create(ctx, f.rec.ID, Hematology, []byte(`{"request":"Công thức máu"}`), bytes.NewReader(snapshotPNG(t)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oldBlob := doc.BlobID

	updated, err := f.svc.Regenerate(ctx, f.rec.ID, doc.ID, []byte(`{"request":"Công thức máu","results":[{"test":"WBC","value":"7.1"}]}`), bytes.NewReader(snapshotPNG(t)))
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if updated.ID != doc.ID || updated.BlobID == oldBlob {
		t.Errorf("unexpected regenerated document %+v", updated)
	}
	if !strings.HasPrefix(updated.FileName, "XNHuyetHoc_NguyenVanAn_") {
		t.Errorf("unexpected file name %q", updated.FileName)
	}
	if _, _, err := f.blobs.Open(ctx, oldBlob); !errors.Is(err, blobstore.ErrBlobNotFound) {
		t.Errorf("old blob should be revoked, got %v", err)
	}
	if f.blobs.Len() != 1 {
		t.Errorf("expected one live blob, have %d", f.blobs.Len())
	}
}

func TestService_RegenerateRejectsUploads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	up, err := f.records.UploadDocument(ctx, f.rec.ID, record.Upload{Type: "other", ContentType: "application/pdf", Content: strings.NewReader("%PDF")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, err := f.svc.Regenerate(ctx, f.rec.ID, up.ID, []byte(`{"request":"x"}`), bytes.NewReader(snapshotPNG(t))); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestHandler_CreateAndRegenerate(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.svc)
	e := echo.New()
	snapshot := snapshotPNG(t)

	send := func(method, data string, params ...string) (*httptest.ResponseRecorder, echo.Context) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		w.WriteField("data", data)
		part, _ := w.CreateFormFile("snapshot", "form.png")
		part.Write(snapshot)
		w.Close()
		req := httptest.NewRequest(method, "/", &buf)
		req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames(params[0 : len(params)/2]...)
		c.SetParamValues(params[len(params)/2:]...)
		return rec, c
	}

	rec, c := send(http.MethodPost, `{"request":"Chụp cột sống"}`, "id", f.rec.ID)
	if err := h.create(XRay)(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var doc record.Document
	json.Unmarshal(rec.Body.Bytes(), &doc)

	rec, c = send(http.MethodPut, `{"request":"Chụp cột sống thắt lưng"}`, "id", "docId", f.rec.ID, doc.ID)
	if err := h.Regenerate(c); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	_, c = send(http.MethodPost, `{"results":[]}`, "id", f.rec.ID)
	var he *echo.HTTPError
	if err := h.create(Hematology)(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}

	stored := f.blobs.Len()
	snapshot = oversizedPNG(8000, 8000)
	_, c = send(http.MethodPost, `{"request":"Công thức máu"}`, "id", f.rec.ID)
	if err := h.create(Hematology)(c); !errors.As(err, &he) || he.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %v", err)
	}
	if f.blobs.Len() != stored {
		t.Errorf("rejected snapshot must not be stored, have %d blobs", f.blobs.Len())
	}
}

// oversizedPNG is a grayscale PNG cut off after its IHDR chunk, declaring
// w x h pixels without any image data.
func oversizedPNG(w, h int) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := append([]byte("IHDR"), 0, 0, 0, 0, 0, 0, 0, 0, 8, 0, 0, 0, 0)
	binary.BigEndian.PutUint32(chunk[4:], uint32(w))
	binary.BigEndian.PutUint32(chunk[8:], uint32(h))
	_ = binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}
