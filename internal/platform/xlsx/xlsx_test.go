package xlsx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWrite(t *testing.T) {
	cols := []Column{{Header: "Mã BN", Width: 18}, {Header: "Họ tên", Width: 28}, {Header: "Tuổi"}}
	rows := [][]any{
		{"BN001", "Nguyễn Văn An", 45},
		{"BN002", "Trần Thị Bình", 30},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "Bệnh nhân", cols, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Bệnh nhân"}, f.GetSheetList())
	got, err := f.GetRows("Bệnh nhân")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Mã BN", "Họ tên", "Tuổi"}, got[0])
	assert.Equal(t, []string{"BN002", "Trần Thị Bình", "30"}, got[2])
}

func TestWrite_RowWidthMismatch(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, "Sheet", []Column{{Header: "A"}, {Header: "B"}}, [][]any{{"only one"}})
	assert.Error(t, err)
}

func TestWrite_HeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "Hồ sơ", []Column{{Header: "Mã HS"}}, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	got, err := f.GetRows("Hồ sơ")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
