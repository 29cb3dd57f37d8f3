// Package clinicalform handles the two structured forms attached to a
// record: the X-ray request/result sheet ("Phiếu X-Quang") and the
// hematology test sheet ("Phiếu XN Huyết học"). Each form is stored as a
// single-page PDF document whose data field keeps the structured input.
package clinicalform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownKind = errors.New("unknown form kind")
	ErrInvalidForm = errors.New("invalid form data")
)

// Kind describes one structured form.
type Kind struct {
	Name         string // route segment
	DocumentType string
	Title        string
	FilePrefix   string
	decode       func([]byte) (validator, error)
}

type validator interface {
	Validate() error
}

var (
	XRay = Kind{
		Name:         "xray",
		DocumentType: "xquang",
		Title:        "Phiếu X-Quang",
		FilePrefix:   "XQuang",
		decode:       decodeInto[XRayForm],
	}
	Hematology = Kind{
		Name:         "hematology",
		DocumentType: "huyethoc",
		Title:        "Phiếu XN Huyết học",
		FilePrefix:   "XNHuyetHoc",
		decode:       decodeInto[HematologyForm],
	}
)

var kinds = []Kind{XRay, Hematology}

// KindByName resolves a route segment such as "xray".
func KindByName(name string) (Kind, error) {
	for _, k := range kinds {
		if k.Name == name {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// KindByDocumentType resolves the kind that produced a document.
func KindByDocumentType(docType string) (Kind, error) {
	for _, k := range kinds {
		if k.DocumentType == docType {
			return k, nil
		}
	}
	return Kind{}, fmt.Errorf("%w: document type %q", ErrUnknownKind, docType)
}

// Normalize validates raw against the kind's form and returns its
// canonical JSON encoding.
func (k Kind) Normalize(raw []byte) (json.RawMessage, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, fmt.Errorf("%w: data is required", ErrInvalidForm)
	}
	form, err := k.decode(raw)
	if err != nil {
		return nil, err
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}
	out, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", k.Name, err)
	}
	return out, nil
}

func decodeInto[T any, PT interface {
	*T
	validator
}](raw []byte) (validator, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidForm, err)
	}
	return PT(&v), nil
}

// XRayForm is the X-ray order and its reading.
type XRayForm struct {
	Department       string `json:"department"`
	Room             string `json:"room"`
	Bed              string `json:"bed"`
	Diagnosis        string `json:"diagnosis"`
	Request          string `json:"request"`
	RequestDate      string `json:"requestDate"`
	RequestingDoctor string `json:"requestingDoctor"`
	Result           string `json:"result"`
	Conclusion       string `json:"conclusion"`
	Advice           string `json:"advice"`
	ResultDate       string `json:"resultDate"`
	RadiologyDoctor  string `json:"radiologyDoctor"`
}

func (f *XRayForm) Validate() error {
	if strings.TrimSpace(f.Request) == "" {
		return fmt.Errorf("%w: request is required", ErrInvalidForm)
	}
	return nil
}

// HematologyResult is one row of the hematology sheet.
type HematologyResult struct {
	Test        string `json:"test"`
	Value       string `json:"value"`
	Unit        string `json:"unit"`
	NormalRange string `json:"normalRange"`
}

type HematologyForm struct {
	Department       string             `json:"department"`
	Room             string             `json:"room"`
	Bed              string             `json:"bed"`
	Diagnosis        string             `json:"diagnosis"`
	Request          string             `json:"request"`
	RequestDate      string             `json:"requestDate"`
	RequestingDoctor string             `json:"requestingDoctor"`
	Results          []HematologyResult `json:"results"`
	Conclusion       string             `json:"conclusion"`
	ResultDate       string             `json:"resultDate"`
	Technician       string             `json:"technician"`
}

func (f *HematologyForm) Validate() error {
	if strings.TrimSpace(f.Request) == "" && len(f.Results) == 0 {
		return fmt.Errorf("%w: request or at least one result is required", ErrInvalidForm)
	}
	for i, r := range f.Results {
		if strings.TrimSpace(r.Test) == "" {
			return fmt.Errorf("%w: result %d has no test name", ErrInvalidForm, i+1)
		}
	}
	return nil
}
