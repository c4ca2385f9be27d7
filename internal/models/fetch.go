package models

// FetchStatus is the state of a health record fetch request
type FetchStatus string

const (
	FetchProcessing FetchStatus = "PROCESSING"
	FetchCompleted  FetchStatus = "COMPLETED"
	FetchPartial    FetchStatus = "PARTIAL"
	FetchFailed     FetchStatus = "FAILED"
	FetchCancelled  FetchStatus = "CANCELLED"
)

// IsTerminal reports whether the fetch request accepts no further progress
func (s FetchStatus) IsTerminal() bool {
	return s != FetchProcessing
}

// HealthRecordFetchRequest represents the HEALTH_RECORD_FETCH_REQUEST table
type HealthRecordFetchRequest struct {
	FetchRequestID    string      `db:"FETCH_REQUEST_ID" json:"id"`
	ArtifactID        string      `db:"ARTIFACT_ID" json:"artifactId"`
	ConsentRequestID  string      `db:"CONSENT_REQUEST_ID" json:"consentRequestId"`
	PatientID         string      `db:"PATIENT_ID" json:"patientId"`
	DoctorID          string      `db:"DOCTOR_ID" json:"doctorId"`
	ExternalRequestID *string     `db:"EXTERNAL_REQUEST_ID" json:"externalRequestId,omitempty"`
	HITypes           StringList  `db:"HI_TYPES" json:"hiTypes"`
	DateRangeFrom     int64       `db:"DATE_RANGE_FROM" json:"dateRangeFrom"`
	DateRangeTo       int64       `db:"DATE_RANGE_TO" json:"dateRangeTo"`
	Status            FetchStatus `db:"STATUS" json:"status"`
	TotalRecords      int         `db:"TOTAL_RECORDS" json:"totalRecords"`
	CompletedRecords  int         `db:"COMPLETED_RECORDS" json:"completedRecords"`
	FailedRecords     int         `db:"FAILED_RECORDS" json:"failedRecords"`
	ErrorMessage      *string     `db:"ERROR_MESSAGE" json:"errorMessage,omitempty"`
	CallbackURL       string      `db:"CALLBACK_URL" json:"callbackUrl"`
	KeyNonce          string      `db:"KEY_NONCE" json:"-"`
	RequestedBy       string      `db:"REQUESTED_BY" json:"requestedBy"`
	ClientIP          *string     `db:"CLIENT_IP" json:"-"`
	UserAgent         *string     `db:"USER_AGENT" json:"-"`
	CreatedTime       int64       `db:"CREATED_TIME" json:"createdTime"`
	UpdatedTime       int64       `db:"UPDATED_TIME" json:"updatedTime"`
	CompletedTime     *int64      `db:"COMPLETED_TIME" json:"completedTime,omitempty"`
}

// DeriveFetchStatus computes the fetch status from its counters.
// A total of zero means the total is not yet known and the request stays PROCESSING.
func DeriveFetchStatus(total, completed, failed int) FetchStatus {
	if total <= 0 || completed+failed < total {
		return FetchProcessing
	}
	if failed == 0 {
		return FetchCompleted
	}
	if completed > 0 {
		return FetchPartial
	}
	return FetchFailed
}

// FetchProgress is the counter change produced by one delivery
type FetchProgress struct {
	Completed int
	Failed    int
	// Total is the total entry count announced by the delivery, zero if not announced
	Total int
	// FatalError is set when the network reports the transfer failed
	FatalError string
}

// ApplyProgress applies a delivery's counter change to a PROCESSING request and
// recomputes its status. It reports false and leaves the request untouched when
// the request is already terminal.
func (f *HealthRecordFetchRequest) ApplyProgress(p FetchProgress, now int64) bool {
	if f.Status.IsTerminal() {
		return false
	}

	f.CompletedRecords += p.Completed
	f.FailedRecords += p.Failed
	if p.Total > f.TotalRecords {
		f.TotalRecords = p.Total
	}
	if f.TotalRecords > 0 && f.CompletedRecords+f.FailedRecords > f.TotalRecords {
		f.TotalRecords = f.CompletedRecords + f.FailedRecords
	}

	if p.FatalError != "" {
		msg := p.FatalError
		f.ErrorMessage = &msg
		f.TotalRecords = f.CompletedRecords + f.FailedRecords
		if f.CompletedRecords == 0 {
			f.Status = FetchFailed
		} else {
			f.Status = FetchPartial
		}
	} else {
		f.Status = DeriveFetchStatus(f.TotalRecords, f.CompletedRecords, f.FailedRecords)
	}

	f.UpdatedTime = now
	if f.Status.IsTerminal() {
		f.CompletedTime = &now
	}
	return true
}

// FetchStatusView is the polling view of a fetch request
type FetchStatusView struct {
	FetchRequestID    string      `json:"id"`
	Status            FetchStatus `json:"status"`
	TotalRecords      int         `json:"totalRecords"`
	CompletedRecords  int         `json:"completedRecords"`
	FailedRecords     int         `json:"failedRecords"`
	TotalKnown        bool        `json:"totalKnown"`
	ExternalRequestID *string     `json:"externalRequestId,omitempty"`
	ErrorMessage      *string     `json:"errorMessage,omitempty"`
	CreatedTime       int64       `json:"createdTime"`
	UpdatedTime       int64       `json:"updatedTime"`
	CompletedTime     *int64      `json:"completedTime,omitempty"`
}

// StatusView builds the polling view
func (f *HealthRecordFetchRequest) StatusView() *FetchStatusView {
	return &FetchStatusView{
		FetchRequestID:    f.FetchRequestID,
		Status:            f.Status,
		TotalRecords:      f.TotalRecords,
		CompletedRecords:  f.CompletedRecords,
		FailedRecords:     f.FailedRecords,
		TotalKnown:        f.TotalRecords > 0,
		ExternalRequestID: f.ExternalRequestID,
		ErrorMessage:      f.ErrorMessage,
		CreatedTime:       f.CreatedTime,
		UpdatedTime:       f.UpdatedTime,
		CompletedTime:     f.CompletedTime,
	}
}
