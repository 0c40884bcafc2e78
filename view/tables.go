package view

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/khaledhikmat/vs-console/console"
	"github.com/khaledhikmat/vs-console/model"
)

const (
	DateLayout = "02/01/2006 15:04:05"
	absent     = "-"
)

// FormatDateTime renders t in local time, or "-" when it is missing.
func FormatDateTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return absent
	}
	return t.Local().Format(DateLayout)
}

func Confidence(c float64) string {
	return strconv.FormatFloat(c*100, 'f', 1, 64) + "%"
}

func orAbsent(s *string) string {
	if s == nil || *s == "" {
		return absent
	}
	return *s
}

func activity(active bool) string {
	if active {
		return "Active"
	}
	return "Paused"
}

func CamerasTable(cameras []model.Camera) string {
	if len(cameras) == 0 {
		return "No cameras yet."
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Name", "Location", "Stream", "Status", "Created"})
	for _, camera := range cameras {
		t.AppendRow(table.Row{
			camera.ID,
			camera.Name,
			orAbsent(camera.Location),
			orAbsent(camera.StreamURL),
			activity(camera.IsActive),
			FormatDateTime(camera.CreatedAt),
		})
	}
	return t.Render()
}

func UsersTable(users []model.User) string {
	if len(users) == 0 {
		return "No users yet."
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Email", "Name", "Status", "Created"})
	for _, user := range users {
		t.AppendRow(table.Row{
			user.ID,
			user.Email,
			orAbsent(user.FullName),
			activity(user.IsActive),
			FormatDateTime(user.CreatedAt),
		})
	}
	return t.Render()
}

func EventsTable(events []model.Event) string {
	if len(events) == 0 {
		return "No events yet."
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Label", "Confidence", "Camera", "Time"})
	for _, event := range events {
		camera := absent
		if event.CameraID != nil {
			camera = strconv.Itoa(*event.CameraID)
		}
		t.AppendRow(table.Row{
			event.ID,
			event.Label,
			Confidence(event.Confidence),
			camera,
			FormatDateTime(event.OccurredAt),
		})
	}
	return t.Render()
}

func DetectionsTable(detections []model.Detection) string {
	if len(detections) == 0 {
		return "No detections."
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Label", "Confidence"})
	for _, d := range detections {
		t.AppendRow(table.Row{d.Label, Confidence(d.Confidence)})
	}
	return t.Render()
}

func CameraOptionsTable(options []console.CameraOption) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Camera"})
	for _, option := range options {
		t.AppendRow(table.Row{option.Label})
	}
	return t.Render()
}

// Summary is the header of the console: the resource counts.
func Summary(snap console.Snapshot) string {
	return fmt.Sprintf("Cameras %d  Events %d  Users %d", len(snap.Cameras), len(snap.Events), len(snap.Users))
}
