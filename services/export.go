package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"social-publisher-platform/internal/auth"
	"social-publisher-platform/models"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ExportRequest represents the request parameters for post history export
type ExportRequest struct {
	Format   string    `json:"format" binding:"required,oneof=json excel both"` // json, excel, both
	DateFrom time.Time `json:"date_from,omitempty"`
	DateTo   time.Time `json:"date_to,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Platform string    `json:"platform,omitempty"`
	Status   string    `json:"status,omitempty"`
	Limit    int       `json:"limit,omitempty"` // Max records to export (0 = no limit)
}

// ExportResponse represents the response for export operations
type ExportResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	FileSize    int64  `json:"file_size,omitempty"`
	RecordCount int    `json:"record_count,omitempty"`
}

// PostExportData represents the structured data for export
type PostExportData struct {
	ExportInfo ExportInfo    `json:"export_info"`
	Posts      []PostExport  `json:"posts"`
	Summary    ExportSummary `json:"summary"`
}

type ExportInfo struct {
	ExportDate   time.Time `json:"export_date"`
	TotalRecords int       `json:"total_records"`
	DateRange    string    `json:"date_range,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	Status       string    `json:"status,omitempty"`
	Format       string    `json:"format"`
}

type PostExport struct {
	ID             string     `json:"id"`
	Platform       string     `json:"platform"`
	Status         string     `json:"status"`
	Content        string     `json:"content"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	PlatformPostID string     `json:"platform_post_id,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ExportSummary struct {
	TotalPosts        int            `json:"total_posts"`
	StatusBreakdown   map[string]int `json:"status_breakdown"`
	PlatformBreakdown map[string]int `json:"platform_breakdown"`
	FailureRate       float64        `json:"failure_rate"`
	DateRange         string         `json:"date_range,omitempty"`
}

// ExportService handles post history export operations
type ExportService struct {
	postsCollection *mongo.Collection
}

// NewExportService creates a new export service
func NewExportService(postsCollection *mongo.Collection) *ExportService {
	return &ExportService{postsCollection: postsCollection}
}

// ExportPosts exports post history in the requested format
func (es *ExportService) ExportPosts(ctx context.Context, req *ExportRequest, userClaims *auth.Claims) (*ExportResponse, []byte, error) {
	filter := es.BuildQueryFilter(req, userClaims)

	opts := options.Find()
	if req.Limit > 0 {
		opts.SetLimit(int64(req.Limit))
	}
	opts.SetSort(bson.D{primitive.E{Key: "created_at", Value: -1}}) // Most recent first

	cursor, err := es.postsCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, nil, fmt.Errorf("failed to decode posts: %w", err)
	}

	if len(posts) == 0 {
		return &ExportResponse{
			Success:     true,
			Message:     "No posts found for the specified criteria",
			RecordCount: 0,
		}, nil, nil
	}

	exportData := es.ConvertToExportFormat(posts, req)

	switch req.Format {
	case "json":
		return es.exportJSON(exportData)
	case "excel":
		return es.exportExcel(exportData)
	case "both":
		return es.exportBoth(exportData)
	default:
		return nil, nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// BuildQueryFilter builds MongoDB query filter based on request parameters
func (es *ExportService) BuildQueryFilter(req *ExportRequest, userClaims *auth.Claims) bson.M {
	filter := bson.M{}

	// Non-admin users only export their own posts
	if userClaims.Role != "admin" {
		userID, err := primitive.ObjectIDFromHex(userClaims.UserID)
		if err == nil {
			filter["user_id"] = userID
		}
	} else if req.UserID != "" {
		userID, err := primitive.ObjectIDFromHex(req.UserID)
		if err == nil {
			filter["user_id"] = userID
		}
	}

	if req.Platform != "" {
		filter["platform"] = req.Platform
	}
	if req.Status != "" {
		filter["status"] = req.Status
	}

	if !req.DateFrom.IsZero() || !req.DateTo.IsZero() {
		dateFilter := bson.M{}
		if !req.DateFrom.IsZero() {
			dateFilter["$gte"] = req.DateFrom
		}
		if !req.DateTo.IsZero() {
			dateFilter["$lte"] = req.DateTo
		}
		filter["created_at"] = dateFilter
	}

	return filter
}

// ConvertToExportFormat converts MongoDB posts to export format
func (es *ExportService) ConvertToExportFormat(posts []models.Post, req *ExportRequest) *PostExportData {
	exportPosts := make([]PostExport, len(posts))
	summary := ExportSummary{
		TotalPosts:        len(posts),
		StatusBreakdown:   make(map[string]int),
		PlatformBreakdown: make(map[string]int),
	}

	failed := 0
	for i, post := range posts {
		exportPosts[i] = PostExport{
			ID:             post.ID.Hex(),
			Platform:       post.Platform,
			Status:         post.Status,
			Content:        post.Content,
			ScheduledAt:    post.ScheduledAt,
			PublishedAt:    post.PublishedAt,
			FailedAt:       post.FailedAt,
			PlatformPostID: post.PlatformPostID,
			ErrorMessage:   post.ErrorMessage,
			CreatedAt:      post.CreatedAt,
		}
		summary.StatusBreakdown[post.Status]++
		summary.PlatformBreakdown[post.Platform]++
		if post.Status == models.PostStatusFailed {
			failed++
		}
	}
	if len(posts) > 0 {
		summary.FailureRate = float64(failed) / float64(len(posts))
	}

	dateRange := formatDateRange(req.DateFrom, req.DateTo)
	summary.DateRange = dateRange

	return &PostExportData{
		ExportInfo: ExportInfo{
			ExportDate:   time.Now(),
			TotalRecords: len(posts),
			DateRange:    dateRange,
			UserID:       req.UserID,
			Platform:     req.Platform,
			Status:       req.Status,
			Format:       req.Format,
		},
		Posts:   exportPosts,
		Summary: summary,
	}
}

func formatDateRange(from, to time.Time) string {
	switch {
	case !from.IsZero() && !to.IsZero():
		return fmt.Sprintf("%s to %s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	case !from.IsZero():
		return fmt.Sprintf("From %s", from.Format("2006-01-02"))
	case !to.IsZero():
		return fmt.Sprintf("Until %s", to.Format("2006-01-02"))
	default:
		return ""
	}
}

// exportJSON exports data as JSON
func (es *ExportService) exportJSON(data *PostExportData) (*ExportResponse, []byte, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return &ExportResponse{
		Success:     true,
		Message:     "JSON export generated successfully",
		FileSize:    int64(len(jsonData)),
		RecordCount: data.ExportInfo.TotalRecords,
	}, jsonData, nil
}

// exportExcel exports data as Excel file
func (es *ExportService) exportExcel(data *PostExportData) (*ExportResponse, []byte, error) {
	buf, err := es.buildWorkbook(data)
	if err != nil {
		return nil, nil, err
	}

	return &ExportResponse{
		Success:     true,
		Message:     "Excel export generated successfully",
		FileSize:    int64(buf.Len()),
		RecordCount: data.ExportInfo.TotalRecords,
	}, buf.Bytes(), nil
}

// exportBoth exports data as both JSON and Excel in a ZIP file
func (es *ExportService) exportBoth(data *PostExportData) (*ExportResponse, []byte, error) {
	var buf bytes.Buffer
	zipWriter := zip.NewWriter(&buf)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonFile, err := zipWriter.Create("post_export.json")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create JSON file in ZIP: %w", err)
	}
	if _, err := jsonFile.Write(jsonData); err != nil {
		return nil, nil, fmt.Errorf("failed to write JSON data: %w", err)
	}

	excelBuf, err := es.buildWorkbook(data)
	if err != nil {
		return nil, nil, err
	}
	excelFile, err := zipWriter.Create("post_export.xlsx")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Excel file in ZIP: %w", err)
	}
	if _, err := excelFile.Write(excelBuf.Bytes()); err != nil {
		return nil, nil, fmt.Errorf("failed to write Excel data to ZIP: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, nil, fmt.Errorf("failed to close ZIP writer: %w", err)
	}

	return &ExportResponse{
		Success:     true,
		Message:     "ZIP export with JSON and Excel files generated successfully",
		FileSize:    int64(buf.Len()),
		RecordCount: data.ExportInfo.TotalRecords,
	}, buf.Bytes(), nil
}

// buildWorkbook renders the post history workbook: one sheet of rows plus a
// summary sheet with status and platform breakdowns.
func (es *ExportService) buildWorkbook(data *PostExportData) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Posts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Platform", "Status", "Content", "Scheduled At", "Published At",
		"Failed At", "Platform Post ID", "Error Message", "Created At",
	}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, post := range data.Posts {
		row := rowIdx + 2 // Start from row 2 (after headers)
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), post.ID)
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), post.Platform)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), post.Status)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), post.Content)
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), formatTimestamp(post.ScheduledAt))
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), formatTimestamp(post.PublishedAt))
		f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), formatTimestamp(post.FailedAt))
		f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), post.PlatformPostID)
		f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), post.ErrorMessage)
		f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), post.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	for i := range headers {
		col := fmt.Sprintf("%c:%c", 'A'+i, 'A'+i)
		f.SetColWidth(sheetName, col, col, 18)
	}

	summarySheetName := "Summary"
	if _, err := f.NewSheet(summarySheetName); err != nil {
		return nil, fmt.Errorf("failed to create summary sheet: %w", err)
	}

	summaryData := [][]interface{}{
		{"Export Information", ""},
		{"Export Date", data.ExportInfo.ExportDate.Format("2006-01-02 15:04:05")},
		{"Total Records", data.ExportInfo.TotalRecords},
		{"Date Range", data.ExportInfo.DateRange},
		{"Format", data.ExportInfo.Format},
		{"", ""},
		{"Summary Statistics", ""},
		{"Total Posts", data.Summary.TotalPosts},
		{"Failure Rate", fmt.Sprintf("%.2f%%", data.Summary.FailureRate*100)},
	}
	for i, row := range summaryData {
		for j, cell := range row {
			cellRef := fmt.Sprintf("%c%d", 'A'+j, i+1)
			f.SetCellValue(summarySheetName, cellRef, cell)
		}
	}

	row := len(summaryData) + 2
	f.SetCellValue(summarySheetName, fmt.Sprintf("A%d", row), "Posts by Status")
	f.SetCellValue(summarySheetName, fmt.Sprintf("B%d", row), "Count")
	row++
	for _, status := range []string{
		models.PostStatusDraft, models.PostStatusScheduled, models.PostStatusPublishing,
		models.PostStatusPublished, models.PostStatusFailed,
	} {
		if count, ok := data.Summary.StatusBreakdown[status]; ok {
			f.SetCellValue(summarySheetName, fmt.Sprintf("A%d", row), status)
			f.SetCellValue(summarySheetName, fmt.Sprintf("B%d", row), count)
			row++
		}
	}

	row += 2
	f.SetCellValue(summarySheetName, fmt.Sprintf("A%d", row), "Posts by Platform")
	f.SetCellValue(summarySheetName, fmt.Sprintf("B%d", row), "Count")
	row++
	for platformName, count := range data.Summary.PlatformBreakdown {
		f.SetCellValue(summarySheetName, fmt.Sprintf("A%d", row), platformName)
		f.SetCellValue(summarySheetName, fmt.Sprintf("B%d", row), count)
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return &buf, nil
}

func formatTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

// StreamExport streams export data directly to the HTTP response
func (es *ExportService) StreamExport(ctx *gin.Context, resp *ExportResponse, payload []byte, format string) {
	switch format {
	case "json":
		ctx.Header("Content-Disposition", "attachment; filename=post_export.json")
		ctx.Header("Content-Length", strconv.Itoa(len(payload)))
		ctx.Data(http.StatusOK, "application/json", payload)
	case "excel":
		ctx.Header("Content-Disposition", "attachment; filename=post_export.xlsx")
		ctx.Header("Content-Length", strconv.Itoa(len(payload)))
		ctx.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", payload)
	case "both":
		ctx.Header("Content-Disposition", "attachment; filename=post_export.zip")
		ctx.Header("Content-Length", strconv.Itoa(len(payload)))
		ctx.Data(http.StatusOK, "application/zip", payload)
	default:
		ctx.JSON(http.StatusOK, resp)
	}
}
