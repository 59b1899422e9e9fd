package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/optimeas/opticloud-device-mgmt-go/cli/reader"
)

const timeLayout = "2006-01-02 15:04:05"

func wrongType(view string, data any) error {
	return fmt.Errorf("%s view cannot show %T", view, data)
}

func renderTransfer(data any) (string, error) {
	tr, ok := data.(*reader.InspectTransferResponse)
	if !ok || tr == nil {
		return "", wrongType("inspect_transfer", data)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Transfer "+tr.TransferID) + "\n")
	b.WriteString(field("Time", tr.Time.Format(timeLayout)))
	b.WriteString(field("Endpoint", tr.Endpoint))
	b.WriteString(field("Request", tr.Request+" ("+tr.Protocol+")"))

	result := lipgloss.NewStyle().Bold(true).Foreground(categoryColor(tr.Category)).Render(tr.Result)
	b.WriteString(labelStyle.Render("Result:") + " " + result + "\n")
	if tr.StatusCode != 0 {
		b.WriteString(field("HTTP", fmt.Sprint(tr.StatusCode)))
	}
	if tr.TransportError != "" {
		b.WriteString(field("Transport", fmt.Sprintf("%d %s", tr.TransportCode, tr.TransportError)))
	}
	if tr.MessageID != "" {
		b.WriteString(field("Message-ID", tr.MessageID))
	}
	if tr.FileTag != "" {
		b.WriteString(field("File-Tag", tr.FileTag))
	}
	b.WriteString(field("Traffic", fmt.Sprintf("%d B up, %d B down in %dms", tr.BytesSent, tr.BytesReceived, tr.DurationMs)))

	return frameStyle.Render(b.String()), nil
}

func renderHistory(data any) (string, error) {
	st, ok := data.(*reader.HistoryStats)
	if !ok || st == nil {
		return "", wrongType("stats_history", data)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Journal") + "\n")
	b.WriteString(tiles(
		tile("total", int64(st.Total), accent),
		tile("ok", int64(st.OK), green),
		tile("tasks", int64(st.Tasks), amber),
		tile("transport", int64(st.Transport), red),
		tile("protocol", int64(st.Protocol), red),
	))
	b.WriteString(countList("Results", st.ByResult))
	b.WriteString(field("Avg duration", fmt.Sprintf("%dms", st.AvgDurationMs)))
	b.WriteString(field("Traffic", fmt.Sprintf("%d B up, %d B down", st.BytesSent, st.BytesReceived)))
	if st.FirstAt != nil && st.LastAt != nil {
		b.WriteString(field("Window", st.FirstAt.Format(timeLayout)+" .. "+st.LastAt.Format(timeLayout)))
	}
	if st.Skipped > 0 {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d undecodable frames skipped", st.Skipped)) + "\n")
	}
	return b.String(), nil
}

func renderMetrics(data any) (string, error) {
	ms, ok := data.(*reader.MetricsSnapshot)
	if !ok || ms == nil {
		return "", wrongType("stats_metrics", data)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Session "+ms.Protocol+" "+ms.Endpoint) + "\n")
	b.WriteString(tiles(
		tile("started", ms.TransfersStarted, accent),
		tile("completed", ms.TransfersCompleted, green),
		tile("config errors", ms.ConfigErrors, red),
	))
	b.WriteString(countList("Results", ms.ByResult))
	b.WriteString(countList("Transport errors", ms.TransportErrors))
	b.WriteString(field("Speed", fmt.Sprintf("%d B/s", ms.AverageSpeed)))
	b.WriteString(field("Adapter", fmt.Sprintf("%d published, %d failed", ms.PublishSuccess, ms.PublishFailure)))
	b.WriteString(field("Journal", fmt.Sprintf("%d written, %d failed", ms.RecordWrites, ms.RecordWriteFailures)))
	return b.String(), nil
}
