package fhir

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wso2/abdm-integration-api/internal/models"
)

func loadBundle(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/prescription_bundle.json")
	require.NoError(t, err)
	return data
}

func TestParse(t *testing.T) {
	bundle, err := Parse(loadBundle(t))
	require.NoError(t, err)

	assert.Equal(t, "Bundle", bundle.ResourceType)
	require.Len(t, bundle.Resources, 5)

	comp := bundle.Resources[0]
	assert.Equal(t, "Composition", comp.ResourceType)
	assert.Equal(t, []string{"645bb0c3-ff7e-4123-bef5-3852a4784813"}, comp.Identifiers)
	assert.Equal(t, "Patient/pat-1", comp.SubjectRef)
	assert.Equal(t, time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC).UnixMilli(), comp.Date)
	assert.Equal(t, "Prescription record", comp.Name)

	med := bundle.Resources[3]
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli(), med.Date)
	assert.NotEmpty(t, med.Raw)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `not json`},
		{"entry without resource", `{"resourceType":"Bundle","entry":[{"fullUrl":"x"}]}`},
		{"resource without type", `{"resourceType":"Bundle","entry":[{"resource":{"id":"1"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	bundle, err := Parse(loadBundle(t))
	require.NoError(t, err)

	assert.NoError(t, bundle.Validate("patient@sbx"), "matches the Patient identifier")
	assert.NoError(t, bundle.Validate("pat-1"), "matches the Patient id")
	assert.Error(t, bundle.Validate("someone-else@sbx"))
}

func TestValidate_SubjectReferenceOnly(t *testing.T) {
	bundle, err := Parse([]byte(`{"resourceType":"Bundle","entry":[
		{"resource":{"resourceType":"Observation","id":"o1","subject":{"reference":"Patient/patient@sbx"}}}]}`))
	require.NoError(t, err)

	assert.NoError(t, bundle.Validate("patient@sbx"))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not a bundle", `{"resourceType":"Observation","entry":[{"resource":{"resourceType":"Observation","subject":{"reference":"Patient/p1"}}}]}`},
		{"no clinical resource", `{"resourceType":"Bundle","entry":[{"resource":{"resourceType":"Patient","id":"p1"}}]}`},
		{"different patient", `{"resourceType":"Bundle","entry":[{"resource":{"resourceType":"Observation","subject":{"reference":"Patient/p2"}}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bundle, err := Parse([]byte(tt.data))
			require.NoError(t, err)
			assert.Error(t, bundle.Validate("p1"))
		})
	}
}

func TestClinicalResources(t *testing.T) {
	bundle, err := Parse(loadBundle(t))
	require.NoError(t, err)

	var types []string
	for _, res := range bundle.ClinicalResources() {
		types = append(types, res.ResourceType)
	}
	assert.Equal(t, []string{"Composition", "MedicationRequest", "Condition"}, types)
}

func TestRecordType(t *testing.T) {
	bundle, err := Parse(loadBundle(t))
	require.NoError(t, err)
	assert.Equal(t, models.RecordTypePrescription, bundle.RecordType(nil))

	wellness, err := Parse([]byte(`{"resourceType":"Bundle","entry":[
		{"resource":{"resourceType":"Composition","type":{"text":"Wellness Record"}}}]}`))
	require.NoError(t, err)
	assert.Equal(t, models.RecordTypeWellnessRecord, wellness.RecordType(nil))

	noComposition, err := Parse([]byte(`{"resourceType":"Bundle","entry":[
		{"resource":{"resourceType":"DiagnosticReport","id":"d1"}}]}`))
	require.NoError(t, err)
	assert.Equal(t, models.RecordTypeDiagnosticReport, noComposition.RecordType(nil))
	assert.Equal(t, models.RecordTypeOPConsultation, noComposition.RecordType([]string{models.HITypeOPConsultation}))
}

func TestProviderAndCompositionDate(t *testing.T) {
	bundle, err := Parse(loadBundle(t))
	require.NoError(t, err)

	id, name, ok := bundle.Provider()
	assert.True(t, ok)
	assert.Equal(t, "org-1", id)
	assert.Equal(t, "City Clinic", name)
	assert.Equal(t, bundle.Resources[0].Date, bundle.CompositionDate())
}
