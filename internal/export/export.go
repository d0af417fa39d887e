package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"turnero/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// HistoryStore provides the rows the exporter needs.
type HistoryStore interface {
	GetService(ctx context.Context, id int64) (*models.Service, error)
	EntryHistory(ctx context.Context, serviceID int64, from, to time.Time) ([]*models.QueueEntry, error)
}

// Exporter builds xlsx workbooks with a service's queue history for
// operators.
type Exporter struct {
	store  HistoryStore
	path   string
	logger *zerolog.Logger
}

func New(store HistoryStore, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, path: path, logger: logger}
}

var historyColumns = []string{
	"Queue #", "User", "Status", "Position", "Estimated wait (min)",
	"Joined", "Called", "Served", "Actual wait (min)", "Notes",
}

// HistoryWorkbook builds the workbook in memory. The caller owns the
// returned file and must Close it.
func (e *Exporter) HistoryWorkbook(ctx context.Context, serviceID int64, from, to time.Time) (*excelize.File, error) {
	service, err := e.store.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	entries, err := e.store.EntryHistory(ctx, serviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("error getting queue history: %w", err)
	}

	f := excelize.NewFile()

	sheetName := "Queue history"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("%s: %s - %s",
		service.Name, from.Format("02.01.2006"), to.AddDate(0, 0, -1).Format("02.01.2006")))

	for i, col := range historyColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, col)
	}

	for row, entry := range entries {
		values := []any{
			entry.QueueNumber,
			entry.UserID,
			entry.Status,
			entry.Position,
			entry.EstimatedWaitMinutes,
			entry.JoinedAt.Format("2006-01-02 15:04"),
			formatOptionalTime(entry.CalledAt),
			formatOptionalTime(entry.ServedAt),
			actualWaitMinutes(entry),
			entry.Notes,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+3)
			_ = f.SetCellValue(sheetName, cell, value)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "J", 18)

	lastCol, _ := excelize.CoordinatesToCellName(len(historyColumns), 1)
	_ = f.MergeCell(sheetName, "A1", lastCol)

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)

	_ = f.DeleteSheet("Sheet1")

	return f, nil
}

// SaveHistory writes the workbook under the configured export path and
// returns the file location.
func (e *Exporter) SaveHistory(ctx context.Context, serviceID int64, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.HistoryWorkbook(ctx, serviceID, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("queue_history_%d_%s.xlsx", serviceID, from.Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04")
}

func actualWaitMinutes(entry *models.QueueEntry) any {
	if entry.ServedAt == nil {
		return ""
	}
	return int(entry.ServedAt.Sub(entry.JoinedAt).Minutes())
}
