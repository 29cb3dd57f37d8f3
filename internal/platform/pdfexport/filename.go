package pdfexport

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hsba/emr/internal/platform/textfold"
)

// RecordFileName is the download name of a printed medical record.
func RecordFileName(recordID string) string {
	return fmt.Sprintf("HoSoBenhAn_%s.pdf", recordID)
}

// FormFileName names a structured clinical form export, e.g.
// XQuang_NguyenVanAn_20250301143000.pdf. The timestamp keeps repeated
// exports for the same patient distinct.
func FormFileName(prefix, patientName string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s.pdf", prefix, textfold.FileToken(patientName), at.Format("20060102150405"))
}

// AttachmentFileName names an uploaded attachment as
// <recordId>_<documentType>_<patientName>.pdf. A positive ageForBirthYear
// appends the birth year derived from it (now.Year() - age).
func AttachmentFileName(recordID, documentType, patientName string, ageForBirthYear int, now time.Time) string {
	name := recordID + "_" + textfold.FileToken(documentType)
	if who := textfold.FileToken(patientName); who != "" {
		name += "_" + who
	}
	if ageForBirthYear > 0 {
		name += "_" + strconv.Itoa(now.Year()-ageForBirthYear)
	}
	return name + ".pdf"
}
