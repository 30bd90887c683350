package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/seamly/stitch/internal/covfile"
	"github.com/seamly/stitch/internal/job"
	"gorm.io/gorm"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/", handleIndex())

	api := router.Group("/api")
	api.GET("/jobs", handleListJobs(opts.DB))
	api.GET("/jobs/:id", handleGetJob(opts.DB))
	api.POST("/jobs/:id/cancel", handleCancelJob(opts.DB))
	api.POST("/analyze", handleAnalyze(opts.DB))
	api.POST("/improve", handleImprove(opts.DB, opts.DefaultProvider))
	api.GET("/repos", handleListRepos(opts.DB, opts.CoverageThreshold))
	api.GET("/repos/:id/files", handleListRepoFiles(opts.DB))
	api.GET("/events", handleSSE(opts.Hub))
}

func handleIndex() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.html", gin.H{})
	}
}

func handleListJobs(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := job.ListFilters{
			Type:         c.Query("type"),
			Status:       c.Query("status"),
			RepositoryID: c.Query("repository_id"),
		}
		if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
			filters.Limit = limit
		}
		rows, err := JobList(db, filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleGetJob(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := GetJobDetail(db, c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func handleCancelJob(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := job.Cancel(db, id); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		j, err := job.Get(db, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, jobRow(j))
	}
}

func handleAnalyze(db *gorm.DB) gin.HandlerFunc {
	type request struct {
		URL    string `json:"url"`
		Branch string `json:"branch"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		j, err := job.CreateAnalysis(db, job.CreateAnalysisOpts{
			SourceURL:    req.URL,
			TargetBranch: req.Branch,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, jobRow(j))
	}
}

func handleImprove(db *gorm.DB, defaultProvider string) gin.HandlerFunc {
	type request struct {
		RepositoryID string   `json:"repository_id"`
		FileIDs      []string `json:"file_ids"`
		Provider     string   `json:"provider"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		provider := req.Provider
		if provider == "" {
			provider = defaultProvider
		}
		j, err := job.CreateImprovement(db, job.CreateImprovementOpts{
			RepositoryID: req.RepositoryID,
			FileIDs:      req.FileIDs,
			Provider:     provider,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, jobRow(j))
	}
}

func handleListRepos(db *gorm.DB, threshold float64) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := RepoSummary(db, threshold)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

func handleListRepoFiles(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		filters := covfile.ListFilters{
			RepositoryID: c.Param("id"),
			Status:       c.Query("status"),
		}
		if below, err := strconv.ParseFloat(c.Query("below"), 64); err == nil {
			filters.Below = &below
		}
		rows, err := FileList(db, filters)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rows)
	}
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, job.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
