// internal/domain/group/group.go
package group

import (
	"encoding/json"

	"zvit_agent/internal/domain/schedule"
)

// Group is the subset of a backend group the agent needs for reminders.
type Group struct {
	ID         string          `json:"groupId"`
	Name       string          `json:"externalName"`
	ReportType string          `json:"reportType,omitempty"`
	UserRole   string          `json:"userRole,omitempty"`
	Schedule   schedule.Config `json:"schedule"`
}

// UnmarshalJSON accepts both the stored form above and the backend form,
// where the id may be "id", the name may be "name" and the schedule fields
// sit at the top level of the object.
func (g *Group) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID           string           `json:"id"`
		GroupID      string           `json:"groupId"`
		Name         string           `json:"name"`
		ExternalName string           `json:"externalName"`
		ReportType   string           `json:"reportType"`
		UserRole     string           `json:"userRole"`
		Schedule     *schedule.Config `json:"schedule"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	g.ID = raw.GroupID
	if g.ID == "" {
		g.ID = raw.ID
	}
	g.Name = raw.ExternalName
	if g.Name == "" {
		g.Name = raw.Name
	}
	g.ReportType = raw.ReportType
	g.UserRole = raw.UserRole

	if raw.Schedule != nil {
		g.Schedule = *raw.Schedule
		return nil
	}
	// Flat backend shape: scheduleType, fixedTime1..5, intervalStartTime...
	g.Schedule = schedule.Config{}
	return json.Unmarshal(b, &g.Schedule)
}
