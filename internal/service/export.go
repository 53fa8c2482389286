package service

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"connectrpc.com/connect"

	"github.com/mmynk/hisaab/internal/middleware"
	"github.com/mmynk/hisaab/internal/reports"
)

// Export paths, served outside Connect so browsers can download the files.
const (
	ExportCSVPath = "/export/csv"
	ExportPDFPath = "/export/pdf"
)

// ExportHandler serves the caller's monthly report as CSV or PDF. It expects
// the identity set by middleware.Authenticate; year and month come from the
// query string and default to the current month.
type ExportHandler struct {
	analytics *AnalyticsService
	logger    *slog.Logger
}

func NewExportHandler(analytics *AnalyticsService, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{analytics: analytics, logger: logger}
}

// Register mounts both export routes on mux, wrapped by wrap.
func (h *ExportHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("GET "+ExportCSVPath, wrap(http.HandlerFunc(h.serveCSV)))
	mux.Handle("GET "+ExportPDFPath, wrap(http.HandlerFunc(h.servePDF)))
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func (h *ExportHandler) report(w http.ResponseWriter, r *http.Request) (*reports.Report, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return nil, false
	}

	year, err := queryInt(r, "year")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	month, err := queryInt(r, "month")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	report, err := h.analytics.MonthlyReport(r.Context(), userID, year, month)
	if err != nil {
		switch connect.CodeOf(err) {
		case connect.CodeInvalidArgument:
			http.Error(w, err.Error(), http.StatusBadRequest)
		case connect.CodeNotFound:
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.logger.Error("Export failed", "user_id", userID, "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return nil, false
		}
		h.logger.Warn("Export rejected", "user_id", userID, "error", err)
		return nil, false
	}
	return report, true
}

func (h *ExportHandler) serveCSV(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := reports.WriteCSV(&buf, report); err != nil {
		h.logger.Error("CSV export failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename("csv"))
	w.Write(buf.Bytes())
}

func (h *ExportHandler) servePDF(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}

	data, err := reports.BuildPDF(report)
	if err != nil {
		h.logger.Error("PDF export failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+report.Filename("pdf"))
	w.Write(data)
}
