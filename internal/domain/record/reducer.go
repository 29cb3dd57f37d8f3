package record

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hsba/emr/internal/domain/patient"
	"github.com/hsba/emr/internal/platform/formstate"
	"github.com/hsba/emr/internal/platform/ids"
)

var ErrDocumentNotFound = errors.New("document not found")

// Action is one edit of a record form. Reduce applies it.
type Action interface {
	actionName() string
}

// SetField replaces the leaf at Path.
type SetField struct {
	Path  formstate.Path
	Value any
}

// AddTransfer appends a department transfer under a fresh id.
type AddTransfer struct {
	Transfer Transfer
}

// UpdateTransfer replaces the transfer at Index, keeping its id.
type UpdateTransfer struct {
	Index    int
	Transfer Transfer
}

// RemoveTransfer drops the transfer at Index. Index 0 is the admitting
// department and is never removed.
type RemoveTransfer struct {
	Index int
}

type AddDocument struct {
	Document Document
}

// UpdateDocument merges Patch, keyed by JSON field name, into document ID.
type UpdateDocument struct {
	ID    string
	Patch map[string]any
}

type RemoveDocument struct {
	ID string
}

// EnsureDefaultTransfer seeds an empty transfer list with the admitting
// department so the edit form always has a first row.
type EnsureDefaultTransfer struct{}

func (SetField) actionName() string              { return "set" }
func (AddTransfer) actionName() string           { return "add_transfer" }
func (UpdateTransfer) actionName() string        { return "update_transfer" }
func (RemoveTransfer) actionName() string        { return "remove_transfer" }
func (AddDocument) actionName() string           { return "add_document" }
func (UpdateDocument) actionName() string        { return "update_document" }
func (RemoveDocument) actionName() string        { return "remove_document" }
func (EnsureDefaultTransfer) actionName() string { return "ensure_default_transfer" }

var readOnlyRoots = map[string]bool{
	"id":        true,
	"createdAt": true,
	"updatedAt": true,
	"documents": true,
}

var readOnlyDocumentKeys = map[string]bool{
	"id":     true,
	"url":    true,
	"blobId": true,
}

var (
	isAutopsyPath        = formstate.MustParsePath("dischargeStatusInfo.isAutopsy")
	autopsyDiagnosisPath = formstate.MustParsePath("dischargeStatusInfo.autopsyDiagnosis")
)

// Reduce returns the record that results from applying a to state. state is
// never modified; only the objects on the edited path are copied. A nil
// state yields nil for every action. A no-op returns state itself.
func Reduce(state *Record, a Action, now time.Time) (*Record, error) {
	if state == nil {
		return nil, nil
	}
	switch a := a.(type) {
	case SetField:
		return setField(state, a, now)

	case AddTransfer:
		t := a.Transfer
		t.ID = ids.Next(ids.PrefixTransfer, now)
		return withTransfers(state, append(cloneTransfers(state, 1), t)), nil

	case UpdateTransfer:
		transfers := state.ManagementData.Transfers
		if a.Index < 0 || a.Index >= len(transfers) {
			return nil, fmt.Errorf("%w: transfer %d of %d", formstate.ErrIndexOutOfRange, a.Index, len(transfers))
		}
		t := a.Transfer
		t.ID = transfers[a.Index].ID
		next := cloneTransfers(state, 0)
		next[a.Index] = t
		return withTransfers(state, next), nil

	case RemoveTransfer:
		transfers := state.ManagementData.Transfers
		if a.Index < 0 || a.Index >= len(transfers) {
			return nil, fmt.Errorf("%w: transfer %d of %d", formstate.ErrIndexOutOfRange, a.Index, len(transfers))
		}
		if a.Index == 0 {
			return state, nil
		}
		next := make([]Transfer, 0, len(transfers)-1)
		next = append(next, transfers[:a.Index]...)
		next = append(next, transfers[a.Index+1:]...)
		return withTransfers(state, next), nil

	case EnsureDefaultTransfer:
		if len(state.ManagementData.Transfers) > 0 {
			return state, nil
		}
		return withTransfers(state, []Transfer{{
			ID:         ids.Next(ids.PrefixTransfer, now),
			Department: state.Department,
			Date:       state.AdmissionDate,
			Time:       state.ManagementData.AdmissionTime,
		}}), nil

	case AddDocument:
		d := a.Document
		if d.ID == "" {
			d.ID = ids.Next(ids.PrefixDocument, now)
		}
		if state.DocumentIndex(d.ID) >= 0 {
			return nil, fmt.Errorf("document %s already attached", d.ID)
		}
		docs := make([]Document, len(state.Documents), len(state.Documents)+1)
		copy(docs, state.Documents)
		return withDocuments(state, append(docs, d)), nil

	case UpdateDocument:
		return updateDocument(state, a)

	case RemoveDocument:
		i := state.DocumentIndex(a.ID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, a.ID)
		}
		docs := make([]Document, 0, len(state.Documents)-1)
		docs = append(docs, state.Documents[:i]...)
		docs = append(docs, state.Documents[i+1:]...)
		return withDocuments(state, docs), nil
	}
	return nil, fmt.Errorf("unsupported action %T", a)
}

func setField(state *Record, a SetField, now time.Time) (*Record, error) {
	if len(a.Path) == 0 {
		return nil, fmt.Errorf("%w: empty path", formstate.ErrInvalidPath)
	}
	if root, ok := a.Path[0].(string); ok && readOnlyRoots[root] {
		return nil, fmt.Errorf("%w: %s cannot be set directly", formstate.ErrInvalidPath, a.Path)
	}
	if replacesTransfers(a.Path) {
		return nil, fmt.Errorf("%w: %s is changed through the transfer actions", formstate.ErrInvalidPath, a.Path)
	}

	next, err := formstate.SetIn(state, a.Path, a.Value)
	if err != nil {
		return nil, err
	}

	switch {
	case a.Path.Last() == "dob":
		dob, _ := a.Value.(string)
		if age, ok := patient.AgeFromDOB(dob, now); ok {
			// Records without a sibling age field just skip the derivation.
			if derived, err := formstate.SetIn(next, a.Path.Parent().Child("age"), age); err == nil {
				next = derived
			}
		}
	case a.Path.String() == isAutopsyPath.String() && !next.DischargeStatusInfo.IsAutopsy:
		if next, err = formstate.SetIn(next, autopsyDiagnosisPath, Coded{}); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// replacesTransfers reports whether p would swap out the transfer list, a
// whole transfer, or a transfer id. Fields inside a transfer stay settable.
func replacesTransfers(p formstate.Path) bool {
	if p[0] != "managementData" {
		return false
	}
	if len(p) == 1 {
		return true
	}
	if p[1] != "transfers" {
		return false
	}
	return len(p) <= 3 || p[3] == "id"
}

func updateDocument(state *Record, a UpdateDocument) (*Record, error) {
	i := state.DocumentIndex(a.ID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, a.ID)
	}
	keys := make([]string, 0, len(a.Patch))
	for k := range a.Patch {
		if readOnlyDocumentKeys[k] {
			return nil, fmt.Errorf("%w: document %s is read-only", formstate.ErrInvalidPath, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	doc := &state.Documents[i]
	for _, k := range keys {
		updated, err := formstate.SetIn(doc, formstate.Path{k}, a.Patch[k])
		if err != nil {
			return nil, err
		}
		doc = updated
	}
	docs := make([]Document, len(state.Documents))
	copy(docs, state.Documents)
	docs[i] = *doc
	return withDocuments(state, docs), nil
}

// cloneTransfers copies the transfer list with room for extra appends.
func cloneTransfers(state *Record, extra int) []Transfer {
	src := state.ManagementData.Transfers
	out := make([]Transfer, len(src), len(src)+extra)
	copy(out, src)
	return out
}

func withTransfers(state *Record, transfers []Transfer) *Record {
	next := *state
	next.ManagementData.Transfers = transfers
	return &next
}

func withDocuments(state *Record, docs []Document) *Record {
	next := *state
	next.Documents = docs
	return &next
}
