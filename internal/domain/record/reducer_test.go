package record

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsba/emr/internal/platform/formstate"
)

var now2025 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func sampleRecord() *Record {
	return &Record{
		ID:            "REC1",
		PatientID:     "BN1",
		PatientName:   "Nguyễn Văn An",
		DOB:           "1980-03-01",
		Age:           45,
		Department:    "Khoa Nội",
		AdmissionDate: "2025-05-20",
		Type:          TypeInternal,
		ManagementData: ManagementData{
			AdmissionTime: "08:30",
			Transfers: []Transfer{
				{ID: "TR1", Department: "Khoa Nội", Date: "2025-05-20"},
				{ID: "TR2", Department: "Khoa Tim mạch", Date: "2025-05-22"},
			},
		},
		Documents: []Document{
			{ID: "DOC1", Name: "Phiếu X-Quang", Type: "xquang", BlobID: "b1"},
			{ID: "DOC2", Name: "Giấy chuyển viện", Type: "other", BlobID: "b2"},
		},
		DiagnosisInfo: DiagnosisInfo{
			DischargeDiagnosis: DischargeDiagnosis{MainDisease: Coded{Name: "Viêm phổi", Code: "J18"}},
		},
	}
}

func TestReduce_SetFieldCopiesPathOnly(t *testing.T) {
	state := sampleRecord()
	original := sampleRecord()

	next, err := Reduce(state, SetField{
		Path:  formstate.MustParsePath("diagnosisInfo.dischargeDiagnosis.mainDisease.code"),
		Value: "J18.9",
	}, now2025)
	require.NoError(t, err)

	assert.NotSame(t, state, next)
	assert.Equal(t, "J18.9", next.DiagnosisInfo.DischargeDiagnosis.MainDisease.Code)
	assert.Equal(t, "Viêm phổi", next.DiagnosisInfo.DischargeDiagnosis.MainDisease.Name)
	assert.Equal(t, original, state, "input must not change")

	// Branches off the path are shared, not copied.
	assert.Same(t, &state.ManagementData.Transfers[0], &next.ManagementData.Transfers[0])
	assert.Same(t, &state.Documents[0], &next.Documents[0])
}

func TestReduce_SetFieldInsideTransfer(t *testing.T) {
	state := sampleRecord()
	next, err := Reduce(state, SetField{
		Path:  formstate.MustParsePath("managementData.transfers[1].department"),
		Value: "Khoa Hồi sức",
	}, now2025)
	require.NoError(t, err)

	assert.Equal(t, "Khoa Hồi sức", next.ManagementData.Transfers[1].Department)
	assert.Equal(t, "Khoa Tim mạch", state.ManagementData.Transfers[1].Department)
	assert.NotSame(t, &state.ManagementData.Transfers[0], &next.ManagementData.Transfers[0], "edited slice is copied")
	assert.Same(t, &state.Documents[0], &next.Documents[0])
}

func TestReduce_DOBRecomputesAge(t *testing.T) {
	next, err := Reduce(sampleRecord(), SetField{Path: formstate.MustParsePath("dob"), Value: "1990-06-15"}, now2025)
	require.NoError(t, err)
	assert.Equal(t, 35, next.Age)

	next, err = Reduce(sampleRecord(), SetField{Path: formstate.MustParsePath("dob"), Value: "not-a-date"}, now2025)
	require.NoError(t, err)
	assert.Equal(t, "not-a-date", next.DOB)
	assert.Equal(t, 45, next.Age, "invalid dob keeps the old age")
}

func TestReduce_ClearingAutopsyClearsDiagnosis(t *testing.T) {
	state := sampleRecord()
	state.DischargeStatusInfo.IsAutopsy = true
	state.DischargeStatusInfo.AutopsyDiagnosis = Coded{Name: "Nhồi máu cơ tim", Code: "I21"}

	next, err := Reduce(state, SetField{Path: formstate.MustParsePath("dischargeStatusInfo.isAutopsy"), Value: false}, now2025)
	require.NoError(t, err)
	assert.False(t, next.DischargeStatusInfo.IsAutopsy)
	assert.Equal(t, Coded{}, next.DischargeStatusInfo.AutopsyDiagnosis)
	assert.Equal(t, "I21", state.DischargeStatusInfo.AutopsyDiagnosis.Code)
}

func TestReduce_ReadOnlyRoots(t *testing.T) {
	for _, p := range []string{"id", "createdAt", "documents[0].blobId"} {
		_, err := Reduce(sampleRecord(), SetField{Path: formstate.MustParsePath(p), Value: "x"}, now2025)
		assert.ErrorIs(t, err, formstate.ErrInvalidPath, p)
	}
}

func TestReduce_TransferListOnlyChangesThroughTransferActions(t *testing.T) {
	cases := []struct {
		path  string
		value any
	}{
		{"managementData", map[string]any{"admissionTime": "09:00"}},
		{"managementData.transfers", []any{}},
		{"managementData.transfers[0]", map[string]any{"department": "Khoa Ngoại"}},
		{"managementData.transfers[1].id", "TR1"},
		{"managementData.transfers[0].id", "TR9"},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			state := sampleRecord()
			_, err := Reduce(state, SetField{Path: formstate.MustParsePath(tc.path), Value: tc.value}, now2025)
			assert.ErrorIs(t, err, formstate.ErrInvalidPath)
			require.Len(t, state.ManagementData.Transfers, 2)
			assert.Equal(t, "TR1", state.ManagementData.Transfers[0].ID)
			assert.Equal(t, "TR2", state.ManagementData.Transfers[1].ID)
		})
	}

	// Sibling fields of the list stay editable.
	next, err := Reduce(sampleRecord(), SetField{Path: formstate.MustParsePath("managementData.admissionTime"), Value: "09:15"}, now2025)
	require.NoError(t, err)
	assert.Equal(t, "09:15", next.ManagementData.AdmissionTime)
}

func TestDecodeActions_SetTransfersRejectedOnReduce(t *testing.T) {
	actions, err := DecodeActions([]byte(`{"actions":[{"op":"set","path":"managementData.transfers","value":[]}]}`))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	_, err = Reduce(sampleRecord(), actions[0], now2025)
	assert.ErrorIs(t, err, formstate.ErrInvalidPath)
}

func TestReduce_NilStateIsNoop(t *testing.T) {
	actions := []Action{
		SetField{Path: formstate.MustParsePath("department"), Value: "x"},
		AddTransfer{},
		UpdateTransfer{Index: 3},
		RemoveTransfer{Index: 0},
		AddDocument{},
		UpdateDocument{ID: "DOC1"},
		RemoveDocument{ID: "DOC1"},
		EnsureDefaultTransfer{},
	}
	for _, a := range actions {
		next, err := Reduce(nil, a, now2025)
		assert.Nil(t, next, "%T", a)
		assert.NoError(t, err, "%T", a)
	}
}

func TestReduce_AddTransfer(t *testing.T) {
	state := sampleRecord()
	next, err := Reduce(state, AddTransfer{Transfer: Transfer{ID: "ignored", Department: "Khoa Ngoại", Days: 3}}, now2025)
	require.NoError(t, err)

	require.Len(t, next.ManagementData.Transfers, 3)
	added := next.ManagementData.Transfers[2]
	assert.Equal(t, "Khoa Ngoại", added.Department)
	assert.True(t, strings.HasPrefix(added.ID, "TR"))
	assert.NotEqual(t, "ignored", added.ID)
	assert.Len(t, state.ManagementData.Transfers, 2)
}

func TestReduce_UpdateTransfer(t *testing.T) {
	state := sampleRecord()
	next, err := Reduce(state, UpdateTransfer{Index: 1, Transfer: Transfer{Department: "Khoa Thần kinh", Days: 4}}, now2025)
	require.NoError(t, err)
	assert.Equal(t, Transfer{ID: "TR2", Department: "Khoa Thần kinh", Days: 4}, next.ManagementData.Transfers[1])
	assert.Equal(t, state.ManagementData.Transfers[0], next.ManagementData.Transfers[0])

	_, err = Reduce(state, UpdateTransfer{Index: 2}, now2025)
	assert.ErrorIs(t, err, formstate.ErrIndexOutOfRange)
}

func TestReduce_RemoveTransfer(t *testing.T) {
	state := sampleRecord()

	next, err := Reduce(state, RemoveTransfer{Index: 1}, now2025)
	require.NoError(t, err)
	require.Len(t, next.ManagementData.Transfers, 1)
	assert.Equal(t, "TR1", next.ManagementData.Transfers[0].ID)
	assert.Len(t, state.ManagementData.Transfers, 2)

	_, err = Reduce(state, RemoveTransfer{Index: 5}, now2025)
	assert.ErrorIs(t, err, formstate.ErrIndexOutOfRange)
}

func TestReduce_RemoveFirstTransferIsNoop(t *testing.T) {
	state := sampleRecord()
	next, err := Reduce(state, RemoveTransfer{Index: 0}, now2025)
	require.NoError(t, err)
	assert.Same(t, state, next)

	only := sampleRecord()
	only.ManagementData.Transfers = only.ManagementData.Transfers[:1]
	next, err = Reduce(only, RemoveTransfer{Index: 0}, now2025)
	require.NoError(t, err)
	assert.Same(t, only, next)
	assert.Len(t, next.ManagementData.Transfers, 1)
}

func TestReduce_EnsureDefaultTransfer(t *testing.T) {
	state := sampleRecord()
	next, err := Reduce(state, EnsureDefaultTransfer{}, now2025)
	require.NoError(t, err)
	assert.Same(t, state, next, "existing transfers are left alone")

	empty := sampleRecord()
	empty.ManagementData.Transfers = nil
	next, err = Reduce(empty, EnsureDefaultTransfer{}, now2025)
	require.NoError(t, err)
	require.Len(t, next.ManagementData.Transfers, 1)
	first := next.ManagementData.Transfers[0]
	assert.Equal(t, "Khoa Nội", first.Department)
	assert.Equal(t, "2025-05-20", first.Date)
	assert.Equal(t, "08:30", first.Time)
	assert.Nil(t, empty.ManagementData.Transfers)
}

func TestReduce_Documents(t *testing.T) {
	state := sampleRecord()

	next, err := Reduce(state, AddDocument{Document: Document{Name: "Phiếu XN", Type: "huyethoc"}}, now2025)
	require.NoError(t, err)
	require.Len(t, next.Documents, 3)
	assert.True(t, strings.HasPrefix(next.Documents[2].ID, "DOC"))
	assert.Len(t, state.Documents, 2)

	_, err = Reduce(state, AddDocument{Document: Document{ID: "DOC1"}}, now2025)
	assert.Error(t, err, "duplicate document id")

	next, err = Reduce(state, UpdateDocument{ID: "DOC2", Patch: map[string]any{
		"name": "Giấy ra viện",
		"data": map[string]any{"note": "x"},
	}}, now2025)
	require.NoError(t, err)
	assert.Equal(t, "Giấy ra viện", next.Documents[1].Name)
	assert.Equal(t, "other", next.Documents[1].Type)
	assert.JSONEq(t, `{"note":"x"}`, string(next.Documents[1].Data))
	assert.Equal(t, "Giấy chuyển viện", state.Documents[1].Name)

	_, err = Reduce(state, UpdateDocument{ID: "DOC2", Patch: map[string]any{"blobId": "evil"}}, now2025)
	assert.ErrorIs(t, err, formstate.ErrInvalidPath)

	_, err = Reduce(state, UpdateDocument{ID: "DOC9", Patch: map[string]any{"name": "x"}}, now2025)
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	next, err = Reduce(state, RemoveDocument{ID: "DOC1"}, now2025)
	require.NoError(t, err)
	require.Len(t, next.Documents, 1)
	assert.Equal(t, "DOC2", next.Documents[0].ID)
	assert.Len(t, state.Documents, 2)

	_, err = Reduce(state, RemoveDocument{ID: "DOC9"}, now2025)
	assert.True(t, errors.Is(err, ErrDocumentNotFound))
}

func TestDecodeActions(t *testing.T) {
	body := `{"actions":[
		{"op":"set","path":"managementData.transfers.0.days","value":3},
		{"op":"add_transfer","transfer":{"department":"Khoa Ngoại"}},
		{"op":"update_transfer","index":1,"transfer":{"department":"Khoa Nhi"}},
		{"op":"remove_transfer","index":1},
		{"op":"update_document","id":"DOC1","patch":{"name":"X"}},
		{"op":"remove_document","id":"DOC2"},
		{"op":"ensure_default_transfer"}
	]}`
	actions, err := DecodeActions([]byte(body))
	require.NoError(t, err)

	want := []Action{
		SetField{Path: formstate.Path{"managementData", "transfers", 0, "days"}, Value: float64(3)},
		AddTransfer{Transfer: Transfer{Department: "Khoa Ngoại"}},
		UpdateTransfer{Index: 1, Transfer: Transfer{Department: "Khoa Nhi"}},
		RemoveTransfer{Index: 1},
		UpdateDocument{ID: "DOC1", Patch: map[string]any{"name": "X"}},
		RemoveDocument{ID: "DOC2"},
		EnsureDefaultTransfer{},
	}
	require.Len(t, actions, len(want))
	for i := range want {
		assert.True(t, reflect.DeepEqual(want[i], actions[i]), "action %d: got %#v", i, actions[i])
	}
}

func TestDecodeActions_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"empty":             `{"actions":[]}`,
		"unknown op":        `{"actions":[{"op":"explode"}]}`,
		"add document":      `{"actions":[{"op":"add_document"}]}`,
		"missing index":     `{"actions":[{"op":"remove_transfer"}]}`,
		"missing transfer":  `{"actions":[{"op":"add_transfer"}]}`,
		"empty patch":       `{"actions":[{"op":"update_document","id":"DOC1"}]}`,
		"remove without id": `{"actions":[{"op":"remove_document"}]}`,
	}
	for name, body := range cases {
		_, err := DecodeActions([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidRecord, name)
	}
	_, err := DecodeActions([]byte(`{"actions":[{"op":"set","path":""}]}`))
	assert.ErrorIs(t, err, formstate.ErrInvalidPath)
}

func TestRecordJSONShape(t *testing.T) {
	raw, err := json.Marshal(sampleRecord())
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, key := range []string{"patientId", "admissionDate", "dischargeDate", "managementData", "diagnosisInfo", "dischargeStatusInfo", "medicalRecordContent"} {
		assert.Contains(t, m, key)
	}
}
