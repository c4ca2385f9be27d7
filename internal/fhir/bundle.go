// Package fhir parses and checks the FHIR document bundles carried by health
// information deliveries.
package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type,omitempty"`
	Timestamp    string        `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleEntry is one entry of a bundle with its resource kept raw
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Resource is the parsed envelope of one bundle resource plus its original bytes
type Resource struct {
	ResourceType string
	ID           string
	FullURL      string
	Identifiers  []string
	// SubjectRef is subject.reference, or patient.reference for resources that use it
	SubjectRef string
	// Date is the resource's clinical date in epoch millis, zero when absent
	Date  int64
	Name  string
	Codes []Coding
	Raw   json.RawMessage
}

// Coding is a FHIR code in a code system
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type codeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type envelope struct {
	ResourceType       string          `json:"resourceType"`
	ID                 string          `json:"id"`
	Identifier         json.RawMessage `json:"identifier"`
	Subject            json.RawMessage `json:"subject"`
	Patient            json.RawMessage `json:"patient"`
	Type               json.RawMessage `json:"type"`
	Title              string          `json:"title"`
	Name               json.RawMessage `json:"name"`
	Date               string          `json:"date"`
	EffectiveDateTime  string          `json:"effectiveDateTime"`
	AuthoredOn         string          `json:"authoredOn"`
	Issued             string          `json:"issued"`
	OccurrenceDateTime string          `json:"occurrenceDateTime"`
	RecordedDate       string          `json:"recordedDate"`
	PerformedDateTime  string          `json:"performedDateTime"`
	Period             *struct {
		Start string `json:"start"`
	} `json:"period"`
}

// ParsedBundle is a bundle with every entry parsed into a Resource
type ParsedBundle struct {
	Bundle
	Resources []Resource
}

// Parse deserializes a bundle and the envelope of each of its resources
func Parse(data []byte) (*ParsedBundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("invalid bundle JSON: %w", err)
	}

	parsed := &ParsedBundle{Bundle: bundle, Resources: make([]Resource, 0, len(bundle.Entry))}
	for i, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			return nil, fmt.Errorf("bundle entry %d has no resource", i)
		}
		res, err := parseResource(entry.Resource)
		if err != nil {
			return nil, fmt.Errorf("bundle entry %d: %w", i, err)
		}
		res.FullURL = entry.FullURL
		parsed.Resources = append(parsed.Resources, res)
	}

	return parsed, nil
}

func parseResource(raw json.RawMessage) (Resource, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Resource{}, fmt.Errorf("invalid resource: %w", err)
	}
	if env.ResourceType == "" {
		return Resource{}, errors.New("resource has no resourceType")
	}

	res := Resource{
		ResourceType: env.ResourceType,
		ID:           env.ID,
		Raw:          raw,
	}
	for _, id := range decodeIdentifiers(env.Identifier) {
		if id.Value != "" {
			res.Identifiers = append(res.Identifiers, id.Value)
		}
	}
	res.SubjectRef = decodeReference(env.Subject)
	if res.SubjectRef == "" {
		res.SubjectRef = decodeReference(env.Patient)
	}

	// type is an object on Composition and DocumentReference and an array elsewhere
	var concept codeableConcept
	if len(env.Type) > 0 && json.Unmarshal(env.Type, &concept) == nil {
		res.Codes = concept.Coding
		if concept.Text != "" && len(res.Codes) == 0 {
			res.Codes = []Coding{{Display: concept.Text}}
		}
	}

	res.Name = env.Title
	if res.Name == "" && len(env.Name) > 0 {
		var name string
		if json.Unmarshal(env.Name, &name) == nil {
			res.Name = name
		}
	}

	for _, candidate := range []string{
		env.Date, env.EffectiveDateTime, env.AuthoredOn, env.Issued,
		env.OccurrenceDateTime, env.RecordedDate, env.PerformedDateTime,
	} {
		if millis, ok := parseDate(candidate); ok {
			res.Date = millis
			break
		}
	}
	if res.Date == 0 && env.Period != nil {
		if millis, ok := parseDate(env.Period.Start); ok {
			res.Date = millis
		}
	}

	return res, nil
}

// decodeIdentifiers accepts a single Identifier or a list
func decodeIdentifiers(raw json.RawMessage) []identifier {
	if len(raw) == 0 {
		return nil
	}
	var list []identifier
	if json.Unmarshal(raw, &list) == nil {
		return list
	}
	var single identifier
	if json.Unmarshal(raw, &single) == nil {
		return []identifier{single}
	}
	return nil
}

// decodeReference accepts a single Reference or a list and returns the first reference
func decodeReference(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single reference
	if json.Unmarshal(raw, &single) == nil {
		return single.Reference
	}
	var list []reference
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0].Reference
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// parseDate accepts the FHIR date and dateTime formats
func parseDate(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
