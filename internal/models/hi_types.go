package models

// Health information type codes recognized by the network
const (
	HITypePrescription         = "Prescription"
	HITypeDiagnosticReport     = "DiagnosticReport"
	HITypeOPConsultation       = "OPConsultation"
	HITypeDischargeSummary     = "DischargeSummary"
	HITypeImmunizationRecord   = "ImmunizationRecord"
	HITypeHealthDocumentRecord = "HealthDocumentRecord"
	HITypeWellnessRecord       = "WellnessRecord"
)

// RecordType is the clinical document category of a stored health record
type RecordType string

const (
	RecordTypePrescription         RecordType = "PRESCRIPTION"
	RecordTypeDiagnosticReport     RecordType = "DIAGNOSTIC_REPORT"
	RecordTypeOPConsultation       RecordType = "OP_CONSULTATION"
	RecordTypeDischargeSummary     RecordType = "DISCHARGE_SUMMARY"
	RecordTypeImmunizationRecord   RecordType = "IMMUNIZATION_RECORD"
	RecordTypeHealthDocumentRecord RecordType = "HEALTH_DOCUMENT_RECORD"
	RecordTypeWellnessRecord       RecordType = "WELLNESS_RECORD"
)

var hiTypeRecordTypes = map[string]RecordType{
	HITypePrescription:         RecordTypePrescription,
	HITypeDiagnosticReport:     RecordTypeDiagnosticReport,
	HITypeOPConsultation:       RecordTypeOPConsultation,
	HITypeDischargeSummary:     RecordTypeDischargeSummary,
	HITypeImmunizationRecord:   RecordTypeImmunizationRecord,
	HITypeHealthDocumentRecord: RecordTypeHealthDocumentRecord,
	HITypeWellnessRecord:       RecordTypeWellnessRecord,
}

// IsRecognizedHIType reports whether code is a known health information type
func IsRecognizedHIType(code string) bool {
	_, ok := hiTypeRecordTypes[code]
	return ok
}

// RecordTypeForHIType maps a health information type code to its record type
func RecordTypeForHIType(code string) (RecordType, bool) {
	rt, ok := hiTypeRecordTypes[code]
	return rt, ok
}

// IsValid reports whether the record type is known
func (r RecordType) IsValid() bool {
	for _, rt := range hiTypeRecordTypes {
		if rt == r {
			return true
		}
	}
	return false
}

// ParseRecordType accepts either a record type or a health information type code
func ParseRecordType(value string) (RecordType, bool) {
	if rt := RecordType(value); rt.IsValid() {
		return rt, true
	}
	return RecordTypeForHIType(value)
}
