// Package report summarizes a day of attendance.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
)

const topOrganizations = 5

// HourCount is the number of records in one hour of the day.
type HourCount struct {
	Hour  int    `json:"hour" yaml:"hour"`
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

// OrganizationCount is the number of registered identities per organization.
type OrganizationCount struct {
	Organization string `json:"organization" yaml:"organization"`
	Count        int    `json:"count" yaml:"count"`
}

// Summary describes one calendar day.
type Summary struct {
	Date             string              `json:"date" yaml:"date"`
	Records          int                 `json:"records" yaml:"records"`
	CheckIns         int                 `json:"checkIns" yaml:"checkIns"`
	Registered       int                 `json:"registered" yaml:"registered"`
	AttendanceRate   float64             `json:"attendanceRate" yaml:"attendanceRate"`
	Hourly           []HourCount         `json:"hourly" yaml:"hourly"`
	TopOrganizations []OrganizationCount `json:"topOrganizations" yaml:"topOrganizations"`
}

// Summarize builds the summary of day from that day's records and the
// registered identities. Hours are taken in loc.
func Summarize(day time.Time, records []model.AttendanceRecord, identities []*model.Identity, loc *time.Location) Summary {
	if loc == nil {
		loc = time.Local
	}
	s := Summary{
		Date:       model.DayKey(day, loc),
		Records:    len(records),
		Registered: len(identities),
	}

	checkedIn := make(map[string]bool)
	perHour := make(map[int]int)
	for i := range records {
		r := &records[i]
		perHour[r.Timestamp.In(loc).Hour()]++
		if r.SessionType == model.SessionCheckIn {
			checkedIn[r.IdentityID] = true
		}
	}
	s.CheckIns = len(checkedIn)
	if s.Registered > 0 {
		s.AttendanceRate = float64(s.CheckIns) / float64(s.Registered) * 100
	}

	s.Hourly = make([]HourCount, 0, len(perHour))
	for h, n := range perHour {
		s.Hourly = append(s.Hourly, HourCount{Hour: h, Label: time.Date(0, 1, 1, h, 0, 0, 0, time.UTC).Format("15:04"), Count: n})
	}
	sort.Slice(s.Hourly, func(i, j int) bool { return s.Hourly[i].Hour < s.Hourly[j].Hour })

	s.TopOrganizations = rankOrganizations(identities)
	return s
}

func rankOrganizations(identities []*model.Identity) []OrganizationCount {
	counts := make(map[string]int)
	for _, id := range identities {
		org := strings.TrimSpace(id.Organization)
		if org == "" {
			continue
		}
		counts[org]++
	}
	out := make([]OrganizationCount, 0, len(counts))
	for org, n := range counts {
		out = append(out, OrganizationCount{Organization: org, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Organization < out[j].Organization
	})
	if len(out) > topOrganizations {
		out = out[:topOrganizations]
	}
	return out
}
