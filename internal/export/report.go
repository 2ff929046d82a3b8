// Package export writes the report packet for a finished job: an Excel
// workbook, a markdown summary, and the original documents sorted into
// outcome folders. Export failures are reported to the caller but are not
// fatal to the job.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/recruitai/screening-agent/internal/models"
)

const (
	folderShortlisted = "Shortlisted"
	folderNotSelected = "Not_Selected"
	folderRejected    = "Rejected"
)

// ReportExporter writes packets under a base directory.
type ReportExporter struct {
	baseDir string
	logger  *zap.Logger
	// now is swapped in tests for a stable directory name.
	now func() time.Time
}

// NewReportExporter creates an exporter rooted at baseDir.
func NewReportExporter(baseDir string, logger *zap.Logger) *ReportExporter {
	return &ReportExporter{baseDir: baseDir, logger: logger, now: time.Now}
}

// Export writes the full packet and returns the packet directory.
// originals maps filename to the raw uploaded bytes; missing entries just
// skip the file copy.
func (e *ReportExporter) Export(jobTitle string, result *models.JobResult, originals map[string][]byte) (string, error) {
	dir := filepath.Join(e.baseDir, fmt.Sprintf("Campaign_%s", e.now().Format("20060102_150405")))
	for _, sub := range []string{folderShortlisted, folderNotSelected, folderRejected} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create packet directory: %w", err)
		}
	}

	e.copyOriginals(dir, result, originals)

	if err := e.writeWorkbook(filepath.Join(dir, "Results.xlsx"), jobTitle, result); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "Analysis_Report.md"), []byte(markdownReport(jobTitle, result)), 0o644); err != nil {
		return "", fmt.Errorf("write markdown report: %w", err)
	}
	return dir, nil
}

func (e *ReportExporter) copyOriginals(dir string, result *models.JobResult, originals map[string][]byte) {
	copyInto := func(sub, filename string) {
		data, ok := originals[filename]
		if !ok {
			return
		}
		dst := filepath.Join(dir, sub, filepath.Base(filename))
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			e.logger.Warn("copying original failed",
				zap.String("filename", filename), zap.Error(err))
		}
	}
	for _, c := range result.Selected {
		copyInto(folderShortlisted, c.Filename)
	}
	for _, c := range result.NotSelected {
		copyInto(folderNotSelected, c.Filename)
	}
	for _, r := range result.Rejected {
		copyInto(folderRejected, r.Filename)
	}
}

func (e *ReportExporter) writeWorkbook(path, jobTitle string, result *models.JobResult) error {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "Summary"
	rankedSheet := "Ranked Candidates"
	rejectedSheet := "Rejected"

	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(rankedSheet)
	f.NewSheet(rejectedSheet)

	if err := writeSummarySheet(f, summarySheet, jobTitle, result); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	if err := writeRankedSheet(f, rankedSheet, result); err != nil {
		return fmt.Errorf("ranked sheet: %w", err)
	}
	if err := writeRejectedSheet(f, rejectedSheet, result.Rejected); err != nil {
		return fmt.Errorf("rejected sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func headerStyle(f *excelize.File) (int, error) {
	return f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
}

func writeSummarySheet(f *excelize.File, sheet, jobTitle string, result *models.JobResult) error {
	f.SetColWidth(sheet, "A", "A", 25)
	f.SetColWidth(sheet, "B", "B", 60)

	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "Screening Summary")
	f.MergeCell(sheet, "A1", "B1")
	f.SetCellStyle(sheet, "A1", "B1", header)

	rows := [][2]interface{}{
		{"Job Title", jobTitle},
		{"Generated At", result.GeneratedAt.Format(time.RFC1123)},
		{"Shortlisted", len(result.Selected)},
		{"Not Selected", len(result.NotSelected)},
		{"Rejected", result.RejectedCount},
	}
	for i, row := range rows {
		r := i + 3
		labelCell := fmt.Sprintf("A%d", r)
		f.SetCellValue(sheet, labelCell, row[0])
		f.SetCellStyle(sheet, labelCell, labelCell, labelStyle)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", r), row[1])
	}
	return nil
}

func writeRankedSheet(f *excelize.File, sheet string, result *models.JobResult) error {
	widths := []float64{8, 25, 28, 12, 12, 12, 12, 10, 14, 50}
	for i, w := range widths {
		col := string(rune('A' + i))
		f.SetColWidth(sheet, col, col, w)
	}

	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	headers := []string{"Rank", "Candidate", "Email", "Total", "Semantic", "Keywords", "Experience", "Bonus", "Review", "Matched Skills"}
	for col, h := range headers {
		cell := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, header)
	}

	strongStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C6EFCE"}, Pattern: 1},
	})
	fairStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFEB9C"}, Pattern: 1},
	})

	ranked := append(append([]models.Candidate{}, result.Selected...), result.NotSelected...)
	for i, c := range ranked {
		row := i + 2
		review := "-"
		if c.Review != nil {
			review = c.Review.Status
		}
		values := []interface{}{
			i + 1,
			c.Identity.Name,
			c.Identity.Email,
			c.Breakdown.Total,
			c.Breakdown.SemanticPoints,
			c.Breakdown.KeywordScore,
			c.Breakdown.ExperienceScore,
			c.Breakdown.AchievementBonus,
			review,
			strings.Join(c.Breakdown.MatchedSkills, ", "),
		}
		for col, v := range values {
			f.SetCellValue(sheet, fmt.Sprintf("%s%d", string(rune('A'+col)), row), v)
		}
		if c.Breakdown.Total >= 70 {
			f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), strongStyle)
		} else if c.Breakdown.Total >= 50 {
			f.SetCellStyle(sheet, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), fairStyle)
		}
	}
	return nil
}

func writeRejectedSheet(f *excelize.File, sheet string, rejected []models.RejectedCandidate) error {
	f.SetColWidth(sheet, "A", "A", 30)
	f.SetColWidth(sheet, "B", "B", 25)
	f.SetColWidth(sheet, "C", "C", 50)

	header, err := headerStyle(f)
	if err != nil {
		return err
	}
	for col, h := range []string{"Filename", "Name", "Reason"} {
		cell := fmt.Sprintf("%s1", string(rune('A'+col)))
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, header)
	}
	for i, r := range rejected {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), r.Filename)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), r.Name)
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), r.Reason)
	}
	return nil
}

func markdownReport(jobTitle string, result *models.JobResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Screening Report: %s\n\n", jobTitle)
	fmt.Fprintf(&b, "Generated %s\n\n", result.GeneratedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "- Shortlisted: %d\n- Not selected: %d\n- Rejected: %d\n\n",
		len(result.Selected), len(result.NotSelected), result.RejectedCount)

	b.WriteString("## Shortlist\n\n")
	for i, c := range result.Selected {
		fmt.Fprintf(&b, "### %d. %s (%.1f)\n\n", i+1, c.Identity.Name, c.Breakdown.Total)
		if c.Identity.Email != "" {
			fmt.Fprintf(&b, "- Email: %s\n", c.Identity.Email)
		}
		fmt.Fprintf(&b, "- File: %s\n", c.Filename)
		fmt.Fprintf(&b, "- Matched skills: %s\n", strings.Join(c.Breakdown.MatchedSkills, ", "))
		if c.Review != nil {
			fmt.Fprintf(&b, "- Review: %s\n", c.Review.Status)
			if c.Review.Reasoning != "" {
				fmt.Fprintf(&b, "- Assessment: %s\n", c.Review.Reasoning)
			}
		}
		b.WriteString("\n")
	}

	if len(result.Rejected) > 0 {
		b.WriteString("## Rejected\n\n")
		for _, r := range result.Rejected {
			fmt.Fprintf(&b, "- %s (%s): %s\n", r.Name, r.Filename, r.Reason)
		}
		b.WriteString("\n")
	}
	return b.String()
}
