// package formatter renders track listings as plain text, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/desertthunder/soundcheck/internal/services"
	"github.com/desertthunder/soundcheck/internal/shared"
)

// Supported output formats.
const (
	Text     = "text"
	CSV      = "csv"
	Markdown = "markdown"
	JSON     = "json"
)

// Formats lists every value accepted by [Format].
var Formats = []string{Text, CSV, Markdown, JSON}

// Listing is a titled, ordered list of tracks such as "Top tracks (medium_term)".
type Listing struct {
	Title  string           `json:"title"`
	Tracks []services.Track `json:"tracks"`
}

// Format renders l in the named format. An empty format is [Text].
func Format(l Listing, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", Text:
		return ToText(l)
	case CSV:
		return ToCSV(l)
	case Markdown, "md":
		return ToMarkdown(l)
	case JSON:
		return ToJSON(l, true)
	default:
		return nil, fmt.Errorf("%w: format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// Extension returns the file extension, with the leading dot, for files written in format.
func Extension(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", Text:
		return ".txt", nil
	case CSV:
		return ".csv", nil
	case Markdown, "md":
		return ".md", nil
	case JSON:
		return ".json", nil
	default:
		return "", fmt.Errorf("%w: format %q (want one of %s)", shared.ErrInvalidArgument, format, strings.Join(Formats, ", "))
	}
}

// Write renders l and writes it to path, or to w when path is empty.
func Write(w io.Writer, l Listing, format, path string) error {
	data, err := Format(l, format)
	if err != nil {
		return err
	}

	if path == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ToCSV converts l to CSV with columns: Rank, ID, Title, Artist, Album, Duration, Popularity, Played At
func ToCSV(l Listing) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Rank", "ID", "Title", "Artist", "Album", "Duration", "Popularity", "Played At"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, track := range l.Tracks {
		record := []string{
			strconv.Itoa(i + 1),
			track.ID,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration),
			strconv.Itoa(track.Popularity),
			track.PlayedAt,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown converts l to a Markdown document with a numbered track list.
func ToMarkdown(l Listing) ([]byte, error) {
	var buf bytes.Buffer

	if l.Title != "" {
		buf.WriteString(fmt.Sprintf("# %s\n\n", l.Title))
	}
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n\n", len(l.Tracks)))

	for i, track := range l.Tracks {
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]", i+1, track.Artist, track.Title, albumPart, FormatDuration(track.Duration)))
		if track.PlayedAt != "" {
			buf.WriteString(fmt.Sprintf(" _played %s_", track.PlayedAt))
		}
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// ToText converts l to plain text.
func ToText(l Listing) ([]byte, error) {
	var buf bytes.Buffer

	if l.Title != "" {
		buf.WriteString(l.Title + "\n")
	}
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(l.Tracks)))

	for i, track := range l.Tracks {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, track.Artist, track.Title))
		if track.Album != "" {
			buf.WriteString(fmt.Sprintf("   Album: %s\n", track.Album))
		}
		if track.PlayedAt != "" {
			buf.WriteString(fmt.Sprintf("   Played: %s\n", track.PlayedAt))
		}
	}

	return buf.Bytes(), nil
}

// ToJSON marshals l, indenting when pretty is set.
func ToJSON(l Listing, pretty bool) ([]byte, error) {
	if l.Tracks == nil {
		l.Tracks = []services.Track{}
	}
	data, err := shared.MarshalJSON(l, pretty)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal listing: %w", err)
	}
	return append(data, '\n'), nil
}

// FormatDuration renders seconds as m:ss.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
