// internal/domain/report/report.go
package report

import (
	"errors"
	"strings"
	"time"
)

// Kind distinguishes the two report forms accepted by the backend.
type Kind string

const (
	KindSimple   Kind = "SIMPLE"
	KindExtended Kind = "EXTENDED"
)

// Simple report answers.
const (
	ResponseOK    = "OK"
	ResponseNotOK = "NOT_OK"
)

// Backend endpoints, relative to the API root.
const (
	EndpointSimple   = "/reports/simple"
	EndpointExtended = "/reports/extended"
)

var (
	ErrGroupRequired    = errors.New("report: group id is required")
	ErrResponseRequired = errors.New("report: simple response or at least one field is required")
)

// Report is a user's status submission to a group. A report carrying a
// SimpleResponse is simple, otherwise it is extended (Field1..Field5).
type Report struct {
	GroupID        string `json:"groupId"`
	SimpleResponse string `json:"simpleResponse,omitempty"`
	Field1         string `json:"field1,omitempty"`
	Field2         string `json:"field2,omitempty"`
	Field3         string `json:"field3,omitempty"`
	Field4         string `json:"field4,omitempty"`
	Field5         string `json:"field5,omitempty"`
	Comment        string `json:"comment,omitempty"`
}

func (r Report) fields() []string {
	return []string{r.Field1, r.Field2, r.Field3, r.Field4, r.Field5}
}

// Kind returns the report form.
func (r Report) Kind() Kind {
	if r.SimpleResponse != "" {
		return KindSimple
	}
	return KindExtended
}

// Endpoint is the backend route the report is posted to.
func (r Report) Endpoint() string {
	if r.Kind() == KindSimple {
		return EndpointSimple
	}
	return EndpointExtended
}

// Validate checks the fields the backend requires.
func (r Report) Validate() error {
	if strings.TrimSpace(r.GroupID) == "" {
		return ErrGroupRequired
	}
	if r.Kind() == KindSimple {
		return nil
	}
	for _, f := range r.fields() {
		if strings.TrimSpace(f) != "" {
			return nil
		}
	}
	return ErrResponseRequired
}

// Pending is a report captured while offline, together with the token that
// was valid at capture time. It is replayed as-is by the sync processor.
type Pending struct {
	Report    Report    `json:"report"`
	Token     string    `json:"token"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt"`
}
