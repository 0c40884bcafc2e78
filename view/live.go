package view

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/fatih/color"
	"github.com/samber/lo"
	_ "golang.org/x/image/webp"

	"github.com/khaledhikmat/vs-console/model"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed, color.Bold)
	liveColor    = color.New(color.FgCyan, color.Bold)
)

// Status renders the console-wide notification. The idle status renders empty.
func Status(status model.Status) string {
	switch status.Type {
	case model.StatusSuccess:
		return successColor.Sprint(status.Message)
	case model.StatusError:
		return errorColor.Sprint(status.Message)
	default:
		return ""
	}
}

// FrameInfo describes an encoded frame without keeping it.
type FrameInfo struct {
	Bytes  int
	Width  int
	Height int
	Format string
}

func (f FrameInfo) String() string {
	if f.Format == "" {
		return fmt.Sprintf("%s frame", byteSize(f.Bytes))
	}
	return fmt.Sprintf("%s %s %dx%d", byteSize(f.Bytes), f.Format, f.Width, f.Height)
}

// InspectFrame decodes the frame header. Frames that are not a known image format
// still report their size.
func InspectFrame(state model.LiveState) (FrameInfo, error) {
	data, err := state.FrameBytes()
	if err != nil {
		return FrameInfo{}, err
	}

	info := FrameInfo{Bytes: len(data)}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return info, nil
	}
	info.Width, info.Height, info.Format = cfg.Width, cfg.Height, format
	return info, nil
}

// LiveLine is the one-line rendering of the live panel.
func LiveLine(state model.LiveState) string {
	if !state.Active {
		return "Live stream inactive"
	}
	if !state.HasFrame() {
		return liveColor.Sprint("LIVE") + " Connecting to stream..."
	}

	frame := "undecodable frame"
	if info, err := InspectFrame(state); err == nil {
		frame = info.String()
	}

	var sb strings.Builder
	sb.WriteString(liveColor.Sprint("LIVE"))
	sb.WriteString(" ")
	sb.WriteString(frame)
	if len(state.Detections) > 0 {
		sb.WriteString(" | ")
		sb.WriteString(strings.Join(lo.Map(state.Detections, func(d model.Detection, _ int) string {
			return d.Label + " " + Confidence(d.Confidence)
		}), ", "))
	}
	return sb.String()
}

func byteSize(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
