package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/regcheck/backend/internal/middleware"
	"github.com/regcheck/backend/internal/models"
	"github.com/regcheck/backend/internal/services"
)

// multipartOverhead allows for form boundaries and headers around the file
const multipartOverhead = 1 << 20

type DocumentController struct {
	documents *services.DocumentService
	maxSize   int64
}

func NewDocumentController(documents *services.DocumentService, maxSize int64) *DocumentController {
	return &DocumentController{documents: documents, maxSize: maxSize}
}

func (dc *DocumentController) UploadDocument(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, dc.maxSize+multipartOverhead)
	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": services.ErrFileTooLarge.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer f.Close()

	res, err := dc.documents.Upload(c.Request.Context(), services.UploadInput{
		OwnerID:  userID,
		Filename: file.Filename,
		Size:     file.Size,
		Content:  f,
	})
	if err != nil {
		respondError(c, err, "upload document")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":    "Document uploaded successfully",
		"documentId": res.Document.ID,
		"jobId":      res.Job.ID,
		"document":   res.Document,
	})
}

func (dc *DocumentController) GetDocuments(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	res, err := dc.documents.List(c.Request.Context(), userID, c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err, "fetch documents")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documents": res.Documents,
		"pagination": gin.H{
			"page":  res.Page,
			"limit": res.Limit,
			"total": res.Total,
		},
	})
}

func (dc *DocumentController) GetDocument(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	doc, err := dc.documents.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, "fetch document")
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (dc *DocumentController) DeleteDocument(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := dc.documents.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err, "delete document")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted"})
}

func (dc *DocumentController) ReanalyzeDocument(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	job, err := dc.documents.Reanalyze(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, "start analysis")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Analysis started",
		"documentId": id,
		"jobId":      job.ID,
	})
}

func (dc *DocumentController) GetDocumentJobs(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	jobs, err := dc.documents.Jobs(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, "fetch jobs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

func (dc *DocumentController) GetAnalysis(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	doc, result, err := dc.documents.Analysis(c.Request.Context(), userID, id)
	switch {
	case errors.Is(err, services.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{
			"error":    "Analysis not ready",
			"status":   doc.Status,
			"stage":    doc.Stage,
			"progress": doc.Progress,
		})
		return
	case errors.Is(err, services.ErrNotFound) && doc != nil:
		body := gin.H{"error": "Analysis not available", "status": doc.Status}
		if doc.Status == models.DocumentStatusError {
			body["errorMessage"] = doc.ErrorMessage
		}
		c.JSON(http.StatusNotFound, body)
		return
	case err != nil:
		respondError(c, err, "fetch analysis")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"documentId": doc.ID,
		"filename":   doc.Filename,
		"analysis":   result,
	})
}
