package services

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/fsupp/healthdataflow/internal/models"
)

// Per-entry contribution to the merged raw-text preview.
const archiveEntryPreviewLimit = 1000

// ParseArchive expands a ZIP archive and runs each parseable entry through
// the text parser, merging results into one extraction. Entries are processed
// sequentially in archive order; a failed entry is logged and skipped.
func ParseArchive(data []byte) (*models.ExtractionResult, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, Errf(CodeBadRequest, "reading zip archive: %w", err)
	}

	merged := models.NewExtractionResult()
	var preview strings.Builder

	for _, entry := range archive.File {
		if !parseableEntry(entry.Name) {
			continue
		}
		content, err := readArchiveEntry(entry)
		if err != nil {
			slog.Warn("Skipping unreadable archive entry.", "entry", entry.Name, "error", err)
			continue
		}

		fileType := "txt"
		if strings.EqualFold(path.Ext(entry.Name), ".csv") {
			fileType = "csv"
		}
		partial := ParseText(content, fileType)
		mergeResults(merged, partial)

		if preview.Len() > 0 {
			preview.WriteString("\n")
		}
		preview.WriteString(truncate(content, archiveEntryPreviewLimit))
	}

	merged.GeneticMarkers = dedupeMarkers(merged.GeneticMarkers)
	merged.RawText = truncate(preview.String(), rawTextLimit)
	return merged, nil
}

// parseableEntry filters to .txt and .csv files, skipping macOS resource
// forks and other hidden bookkeeping entries.
func parseableEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX/") {
		return false
	}
	base := path.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(path.Ext(base))
	return ext == ".txt" || ext == ".csv"
}

func readArchiveEntry(entry *zip.File) (string, error) {
	reader, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// mergeResults folds one entry's extraction into the archive-level result.
// Markers are appended so a later entry's genotype supersedes an earlier
// entry's at dedup time; the first detected company and date are kept.
func mergeResults(merged, partial *models.ExtractionResult) {
	merged.GeneticMarkers = append(merged.GeneticMarkers, partial.GeneticMarkers...)
	for name, value := range partial.Biomarkers {
		merged.Biomarkers[name] = value
	}
	if merged.SourceCompany == "" {
		merged.SourceCompany = partial.SourceCompany
	}
	if merged.TestDate == "" {
		merged.TestDate = partial.TestDate
	}
	if partial.IsInterpretedReport {
		merged.IsInterpretedReport = true
		merged.InterpretationSummary = partial.InterpretationSummary
	}
}
