// Package seed loads demo patients, records and accounts.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hsba/emr/internal/domain/account"
	"github.com/hsba/emr/internal/domain/patient"
	"github.com/hsba/emr/internal/domain/record"
	"github.com/hsba/emr/internal/platform/auth"
)

// Services are the write paths seeding goes through.
type Services struct {
	Patients *patient.Service
	Records  *record.Service
	Accounts *account.Service
}

// Summary counts what was created.
type Summary struct {
	Patients int
	Records  int
	Accounts int
}

// DemoAccounts are created when missing. Passwords are for local use only.
var DemoAccounts = []account.User{
	{Username: "admin", Password: "admin123", Role: auth.RoleAdmin, Name: "Quản trị viên"},
	{Username: "giangvien", Password: "giangvien123", Role: auth.RoleTeacher, Name: "ThS. BS. Lê Minh Tuấn"},
	{Username: "sinhvien", Password: "sinhvien123", Role: auth.RoleStudent, Name: "Phạm Thu Hà"},
}

type demoRecord struct {
	Type          string
	Department    string
	AdmissionDate string
	AdmissionTime string
	DischargeDate string
	Reason        string
	Diagnosis     record.Coded
}

type demoPatient struct {
	Patient patient.Patient
	Records []demoRecord
}

var demoPatients = []demoPatient{
	{
		Patient: patient.Patient{
			FullName: "Nguyễn Văn An", DOB: "1975-04-12", Gender: "Nam", Ethnicity: "Kinh", Nationality: "Việt Nam",
			Job: "Kỹ sư", CCCD: "001075004512", Street: "12 Trần Hưng Đạo", Ward: "Phường Phan Chu Trinh",
			District: "Quận Hoàn Kiếm", Province: "Hà Nội", SubjectType: "BHYT", InsuranceNumber: "DN4010123456789",
			InsuranceExpiry: "2026-12-31", RelativeName: "Trần Thị Lan", RelativePhone: "0912345678", Phone: "0987654321",
		},
		Records: []demoRecord{
			{Type: record.TypeInternal, Department: "Nội tim mạch", AdmissionDate: "2025-02-10", AdmissionTime: "08:30",
				DischargeDate: "2025-02-18", Reason: "Đau ngực trái", Diagnosis: record.Coded{Name: "Đau thắt ngực không ổn định", Code: "I20.0"}},
			{Type: record.TypeInternal, Department: "Nội tiêu hoá", AdmissionDate: "2025-05-03", AdmissionTime: "14:10",
				Reason: "Đau thượng vị", Diagnosis: record.Coded{Name: "Viêm dạ dày cấp", Code: "K29.1"}},
		},
	},
	{
		Patient: patient.Patient{
			FullName: "Trần Thị Bình", DOB: "1990-09-23", Gender: "Nữ", Ethnicity: "Kinh", Nationality: "Việt Nam",
			Job: "Giáo viên", CCCD: "079190009123", Street: "45 Lê Lợi", Ward: "Phường Bến Nghé",
			District: "Quận 1", Province: "TP. Hồ Chí Minh", SubjectType: "BHYT", InsuranceNumber: "GD4790987654321",
			InsuranceExpiry: "2026-06-30", RelativeName: "Lê Văn Cường", RelativePhone: "0903111222", Phone: "0934555666",
		},
		Records: []demoRecord{
			{Type: record.TypeSurgery, Department: "Ngoại tổng hợp", AdmissionDate: "2025-03-21", AdmissionTime: "22:05",
				DischargeDate: "2025-03-27", Reason: "Đau hố chậu phải", Diagnosis: record.Coded{Name: "Viêm ruột thừa cấp", Code: "K35.8"}},
		},
	},
	{
		Patient: patient.Patient{
			FullName: "Lê Hoàng Dũng", DOB: "1958-01-05", Gender: "Nam", Ethnicity: "Kinh", Nationality: "Việt Nam",
			Job: "Hưu trí", CCCD: "048058000105", Street: "7 Nguyễn Văn Linh", Ward: "Phường Nam Dương",
			District: "Quận Hải Châu", Province: "Đà Nẵng", SubjectType: "BHYT", InsuranceNumber: "HT2480555444333",
			InsuranceExpiry: "2027-01-31", RelativeName: "Lê Thị Hoa", RelativePhone: "0905777888",
		},
		Records: []demoRecord{
			{Type: record.TypeInternal, Department: "Nội hô hấp", AdmissionDate: "2025-06-14", AdmissionTime: "09:45",
				Reason: "Ho, khó thở", Diagnosis: record.Coded{Name: "Đợt cấp bệnh phổi tắc nghẽn mạn tính", Code: "J44.1"}},
			{Type: record.TypeSurgery, Department: "Chấn thương chỉnh hình", AdmissionDate: "2024-11-02", AdmissionTime: "16:20",
				DischargeDate: "2024-11-15", Reason: "Ngã, đau khớp háng phải", Diagnosis: record.Coded{Name: "Gãy cổ xương đùi", Code: "S72.0"}},
		},
	},
	{
		Patient: patient.Patient{
			FullName: "Phạm Thị Mai", DOB: "2001-07-30", Gender: "Nữ", Ethnicity: "Tày", Nationality: "Việt Nam",
			Job: "Sinh viên", CCCD: "020301007300", Ward: "Xã Hoàng Đồng", District: "TP. Lạng Sơn", Province: "Lạng Sơn",
			SubjectType: "Thu phí", RelativeName: "Phạm Văn Quang", RelativePhone: "0915222333", Phone: "0962444555",
		},
	},
}

// Load creates demo accounts that do not exist yet and, when no patients
// are stored, the demo patients with their records.
func Load(ctx context.Context, svc Services, logger zerolog.Logger) (Summary, error) {
	var sum Summary

	for _, u := range DemoAccounts {
		u := u
		if _, err := svc.Accounts.Create(ctx, &u); err != nil {
			if errors.Is(err, account.ErrExists) {
				continue
			}
			return sum, fmt.Errorf("seed account %s: %w", u.Username, err)
		}
		sum.Accounts++
	}

	existing, err := svc.Patients.List(ctx, "")
	if err != nil {
		return sum, fmt.Errorf("seed: list patients: %w", err)
	}
	if len(existing) > 0 {
		logger.Info().Int("patients", len(existing)).Msg("seed: patients already present, skipping demo patients")
		return sum, nil
	}

	for _, dp := range demoPatients {
		p := dp.Patient
		created, err := svc.Patients.Create(ctx, &p)
		if err != nil {
			return sum, fmt.Errorf("seed patient %s: %w", p.FullName, err)
		}
		sum.Patients++

		for _, dr := range dp.Records {
			draft := &record.Record{
				AdmissionDate: dr.AdmissionDate,
				DischargeDate: dr.DischargeDate,
				Department:    dr.Department,
			}
			draft.ManagementData.AdmissionTime = dr.AdmissionTime
			draft.MedicalRecordContent.ReasonForAdmission = dr.Reason
			draft.DiagnosisInfo.DepartmentDiagnosis = dr.Diagnosis
			if dr.DischargeDate != "" {
				draft.DiagnosisInfo.DischargeDiagnosis.MainDisease = dr.Diagnosis
			}
			if _, err := svc.Records.Create(ctx, created.ID, dr.Type, draft); err != nil {
				return sum, fmt.Errorf("seed record for %s: %w", created.ID, err)
			}
			sum.Records++
		}
	}

	logger.Info().Int("patients", sum.Patients).Int("records", sum.Records).Int("accounts", sum.Accounts).Msg("demo data loaded")
	return sum, nil
}
