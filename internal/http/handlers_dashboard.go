package http

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"loanbook/internal/backup"
	"loanbook/internal/log"
)

// handleDashboard returns today's partition, cached per calendar day.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	key := s.dashboardKey()
	if d, ok := s.dashboardCache.Get(key); ok {
		atomic.AddInt64(&s.appMetrics.cacheHits, 1)
		NewJSONResponse().Header("X-Cache", "HIT").JSON(newDashboardResponse(d)).Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.cacheMisses, 1)

	gen := s.dashboardGeneration()
	d, err := s.loans.Dashboard(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpList, err)
		return
	}
	s.cacheDashboard(key, gen, d)
	NewJSONResponse().Header("X-Cache", "MISS").JSON(newDashboardResponse(d)).Write(w)
}

// handleExportBackup downloads the whole collection.
func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	data, err := s.loans.Export(r.Context())
	if err != nil {
		s.writeError(w, r, log.OpExport, err)
		return
	}
	NewJSONResponse().Raw(data).Attachment(backup.FileName).Write(w)
}

// handleImportBackup replaces the collection with the uploaded backup. The
// body is either the raw JSON array or a multipart form with a "file" part.
func (s *Server) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBackupBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			BadRequestError("missing backup file").Write(w)
			return
		}
		defer file.Close()
		src = file
	}

	data, err := io.ReadAll(src)
	if err != nil {
		BadRequestError(fmt.Sprintf("read backup: %v", err)).Write(w)
		return
	}

	n, err := s.loans.Import(r.Context(), data)
	if err != nil {
		s.writeError(w, r, log.OpImport, err)
		return
	}
	s.afterWrite()
	s.logger.InfoContext(r.Context(), "Backup restored", "loans", n)
	NewJSONResponse().JSON(map[string]int{"imported": n}).Write(w)
}
