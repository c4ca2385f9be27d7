package fhir

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wso2/abdm-integration-api/internal/models"
)

// clinicalResourceTypes are the resource types stored as health records
var clinicalResourceTypes = map[string]bool{
	"Composition":        true,
	"Observation":        true,
	"MedicationRequest":  true,
	"DiagnosticReport":   true,
	"Immunization":       true,
	"DocumentReference":  true,
	"Condition":          true,
	"Procedure":          true,
	"Encounter":          true,
	"AllergyIntolerance": true,
}

// IsClinicalResourceType reports whether resources of this type are stored
func IsClinicalResourceType(resourceType string) bool {
	return clinicalResourceTypes[resourceType]
}

// Validate checks that the bundle belongs to patientID and holds at least one
// clinical resource
func (b *ParsedBundle) Validate(patientID string) error {
	if b.ResourceType != "Bundle" {
		return fmt.Errorf("expected resourceType Bundle, got %q", b.ResourceType)
	}
	if len(b.ClinicalResources()) == 0 {
		return errors.New("bundle contains no recognized clinical resource")
	}
	if !b.referencesPatient(patientID) {
		return fmt.Errorf("bundle does not reference patient %s", patientID)
	}
	return nil
}

func (b *ParsedBundle) referencesPatient(patientID string) bool {
	if patientID == "" {
		return false
	}

	for _, res := range b.Resources {
		if res.ResourceType != "Patient" {
			continue
		}
		if res.ID == patientID {
			return true
		}
		for _, id := range res.Identifiers {
			if id == patientID {
				return true
			}
		}
	}

	target := "Patient/" + patientID
	for _, res := range b.Resources {
		if res.SubjectRef == target || res.SubjectRef == patientID {
			return true
		}
	}
	return false
}

// ClinicalResources returns the resources that become health records, in bundle order
func (b *ParsedBundle) ClinicalResources() []Resource {
	var out []Resource
	for _, res := range b.Resources {
		if IsClinicalResourceType(res.ResourceType) {
			out = append(out, res)
		}
	}
	return out
}

// compositionTypes maps Composition SNOMED CT codes to record types
var compositionTypes = map[string]models.RecordType{
	"440545006":   models.RecordTypePrescription,
	"721981007":   models.RecordTypeDiagnosticReport,
	"371530004":   models.RecordTypeOPConsultation,
	"373942005":   models.RecordTypeDischargeSummary,
	"41000179103": models.RecordTypeImmunizationRecord,
	"419891008":   models.RecordTypeHealthDocumentRecord,
}

// RecordType classifies the bundle. The Composition type decides when present;
// otherwise a single requested HI type, then the first classifiable resource type.
func (b *ParsedBundle) RecordType(requestedHITypes []string) models.RecordType {
	for _, res := range b.Resources {
		if res.ResourceType != "Composition" {
			continue
		}
		for _, coding := range res.Codes {
			if rt, ok := compositionTypes[coding.Code]; ok {
				return rt
			}
			if strings.EqualFold(strings.TrimSpace(coding.Display), "Wellness Record") {
				return models.RecordTypeWellnessRecord
			}
		}
		if strings.EqualFold(strings.TrimSpace(res.Name), "Wellness Record") {
			return models.RecordTypeWellnessRecord
		}
	}

	if len(requestedHITypes) == 1 {
		if rt, ok := models.RecordTypeForHIType(requestedHITypes[0]); ok {
			return rt
		}
	}

	for _, res := range b.Resources {
		switch res.ResourceType {
		case "MedicationRequest":
			return models.RecordTypePrescription
		case "DiagnosticReport":
			return models.RecordTypeDiagnosticReport
		case "Immunization":
			return models.RecordTypeImmunizationRecord
		case "Encounter":
			return models.RecordTypeOPConsultation
		}
	}
	return models.RecordTypeHealthDocumentRecord
}

// CompositionDate returns the Composition date, or zero
func (b *ParsedBundle) CompositionDate() int64 {
	for _, res := range b.Resources {
		if res.ResourceType == "Composition" && res.Date > 0 {
			return res.Date
		}
	}
	return 0
}

// Provider returns the first Organization of the bundle as id and name
func (b *ParsedBundle) Provider() (id, name string, ok bool) {
	for _, res := range b.Resources {
		if res.ResourceType == "Organization" {
			return res.ID, res.Name, true
		}
	}
	return "", "", false
}
