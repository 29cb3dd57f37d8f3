package record

import (
	"encoding/json"
	"time"
)

const (
	TypeInternal = "internal"
	TypeSurgery  = "surgery"
)

// ValidType reports whether t is a known record type.
func ValidType(t string) bool {
	return t == TypeInternal || t == TypeSurgery
}

// Record is a medical record ("hồ sơ bệnh án"). The patient fields are a
// snapshot taken at creation and are never joined back to the patient.
type Record struct {
	ID            string `json:"id"`
	PatientID     string `json:"patientId"`
	PatientName   string `json:"patientName"`
	DOB           string `json:"dob"`
	Age           int    `json:"age"`
	Gender        string `json:"gender"`
	AdmissionDate string `json:"admissionDate"`
	// DischargeDate is empty while the patient is still admitted.
	DischargeDate string `json:"dischargeDate"`
	Department    string `json:"department"`
	Type          string `json:"type"`

	Documents            []Document           `json:"documents"`
	ManagementData       ManagementData       `json:"managementData"`
	DiagnosisInfo        DiagnosisInfo        `json:"diagnosisInfo"`
	DischargeStatusInfo  DischargeStatusInfo  `json:"dischargeStatusInfo"`
	MedicalRecordContent MedicalRecordContent `json:"medicalRecordContent"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type ManagementData struct {
	AdmissionTime  string `json:"admissionTime"`
	AdmissionType  string `json:"admissionType"`
	ReferralSource string `json:"referralSource"`
	AdmissionCount int    `json:"admissionCount"`
	// Transfers[0] is the admitting department and cannot be removed.
	Transfers        []Transfer       `json:"transfers"`
	HospitalTransfer HospitalTransfer `json:"hospitalTransfer"`
	DischargeTime    string           `json:"dischargeTime"`
	DischargeType    string           `json:"dischargeType"`
	TotalDays        int              `json:"totalDays"`
}

type Transfer struct {
	ID         string `json:"id"`
	Department string `json:"department"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Days       int    `json:"days"`
}

type HospitalTransfer struct {
	Type        string `json:"type"`
	Destination string `json:"destination"`
}

// Coded is a diagnosis or cause with its ICD-10 code.
type Coded struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type ProcedureFlags struct {
	IsSurgery   bool `json:"isSurgery"`
	IsProcedure bool `json:"isProcedure"`
}

type DischargeDiagnosis struct {
	MainDisease    Coded `json:"mainDisease"`
	Comorbidities  Coded `json:"comorbidities"`
	IsAccident     bool  `json:"isAccident"`
	IsComplication bool  `json:"isComplication"`
}

type DiagnosisInfo struct {
	TransferDiagnosis   Coded              `json:"transferDiagnosis"`
	KKBDiagnosis        Coded              `json:"kkbDiagnosis"`
	DepartmentDiagnosis Coded              `json:"departmentDiagnosis"`
	ProcedureFlags      ProcedureFlags     `json:"procedureFlags"`
	DischargeDiagnosis  DischargeDiagnosis `json:"dischargeDiagnosis"`
}

type DeathStatus struct {
	Description string `json:"description"`
	Cause       string `json:"cause"`
	Time        string `json:"time"`
}

type DischargeStatusInfo struct {
	TreatmentResult  string      `json:"treatmentResult"`
	Pathology        string      `json:"pathology"`
	DeathStatus      DeathStatus `json:"deathStatus"`
	MainCauseOfDeath Coded       `json:"mainCauseOfDeath"`
	IsAutopsy        bool        `json:"isAutopsy"`
	// AutopsyDiagnosis is only meaningful when IsAutopsy is set.
	AutopsyDiagnosis Coded `json:"autopsyDiagnosis"`
}

// Flag is one of the related-characteristics checkboxes with its duration.
type Flag struct {
	Checked bool   `json:"checked"`
	Time    string `json:"time"`
}

type RelatedCharacteristics struct {
	Allergy     Flag `json:"allergy"`
	Drugs       Flag `json:"drugs"`
	Alcohol     Flag `json:"alcohol"`
	Tobacco     Flag `json:"tobacco"`
	PipeTobacco Flag `json:"pipeTobacco"`
	Other       Flag `json:"other"`
}

type VitalSigns struct {
	Pulse           string `json:"pulse"`
	Temperature     string `json:"temperature"`
	BloodPressure   string `json:"bloodPressure"`
	RespiratoryRate string `json:"respiratoryRate"`
	Weight          string `json:"weight"`
}

type Organs struct {
	Circulatory        string `json:"circulatory"`
	Respiratory        string `json:"respiratory"`
	Digestive          string `json:"digestive"`
	KidneyUrology      string `json:"kidneyUrology"`
	Neurological       string `json:"neurological"`
	Musculoskeletal    string `json:"musculoskeletal"`
	ENT                string `json:"ent"`
	Maxillofacial      string `json:"maxillofacial"`
	Eye                string `json:"eye"`
	EndocrineAndOthers string `json:"endocrineAndOthers"`
}

type AdmissionDiagnosis struct {
	MainDisease   string `json:"mainDisease"`
	Comorbidities string `json:"comorbidities"`
	Differential  string `json:"differential"`
}

type MedicalRecordContent struct {
	ReasonForAdmission     string                 `json:"reasonForAdmission"`
	DayOfIllness           string                 `json:"dayOfIllness"`
	PathologicalProcess    string                 `json:"pathologicalProcess"`
	PersonalHistory        string                 `json:"personalHistory"`
	FamilyHistory          string                 `json:"familyHistory"`
	RelatedCharacteristics RelatedCharacteristics `json:"relatedCharacteristics"`
	VitalSigns             VitalSigns             `json:"vitalSigns"`
	GeneralExamination     string                 `json:"generalExamination"`
	Organs                 Organs                 `json:"organs"`
	ClinicalTests          string                 `json:"clinicalTests"`
	Summary                string                 `json:"summary"`
	AdmissionDiagnosis     AdmissionDiagnosis     `json:"admissionDiagnosis"`
	Prognosis              string                 `json:"prognosis"`
	TreatmentPlan          string                 `json:"treatmentPlan"`
}

// Document is an attachment of a record. URL points at the stored blob and
// stops resolving once the blob is revoked.
type Document struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	Date     string `json:"date"`
	URL      string `json:"url,omitempty"`
	BlobID   string `json:"blobId,omitempty"`
	// Data holds the structured input of a generated form, if any.
	Data json.RawMessage `json:"data,omitempty"`
}

// BlobIDs lists the blobs referenced by the record's documents.
func (r *Record) BlobIDs() []string {
	var out []string
	for _, d := range r.Documents {
		if d.BlobID != "" {
			out = append(out, d.BlobID)
		}
	}
	return out
}

// DocumentIndex returns the position of document id, or -1.
func (r *Record) DocumentIndex(id string) int {
	for i, d := range r.Documents {
		if d.ID == id {
			return i
		}
	}
	return -1
}
