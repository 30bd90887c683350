// Package repo provides repository record operations.
package repo

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/seamly/stitch/internal/models"
	"gorm.io/gorm"
)

// GenerateID creates a unique repository ID in repo-xxxxxxxx format.
func GenerateID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("repo: generate ID: %w", err)
	}
	return "repo-" + hex.EncodeToString(b), nil
}

// ResolveOrCreate finds the repository tracked for a URL+branch pair, or
// creates it. Two concurrent analysis jobs for the same pair race on the
// unique index; the loser re-reads the winner's row.
func ResolveOrCreate(db *gorm.DB, url, branch string) (*models.Repository, error) {
	if url == "" {
		return nil, fmt.Errorf("repo: URL is required")
	}
	if branch == "" {
		return nil, fmt.Errorf("repo: branch is required")
	}

	var existing models.Repository
	err := db.Where("url = ? AND branch = ?", url, branch).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("repo: lookup %s@%s: %w", url, branch, err)
	}

	id, err := generateUniqueID(db)
	if err != nil {
		return nil, err
	}

	owner, name := ParseOwnerName(url)
	r := models.Repository{
		ID:            id,
		URL:           url,
		Owner:         owner,
		Name:          name,
		Branch:        branch,
		DefaultBranch: branch,
	}
	if err := db.Create(&r).Error; err != nil {
		if isDuplicateEntry(err) {
			var winner models.Repository
			if err := db.Where("url = ? AND branch = ?", url, branch).First(&winner).Error; err != nil {
				return nil, fmt.Errorf("repo: re-read after duplicate %s@%s: %w", url, branch, err)
			}
			return &winner, nil
		}
		return nil, fmt.Errorf("repo: create %s@%s: %w", url, branch, err)
	}
	return &r, nil
}

// Get retrieves a repository by ID.
func Get(db *gorm.DB, id string) (*models.Repository, error) {
	var r models.Repository
	if err := db.Where("id = ?", id).First(&r).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("repo: not found %s: %w", id, gorm.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("repo: get %s: %w", id, err)
	}
	return &r, nil
}

// List returns all tracked repositories ordered by URL then branch.
func List(db *gorm.DB) ([]models.Repository, error) {
	var repos []models.Repository
	if err := db.Order("url ASC, branch ASC").Find(&repos).Error; err != nil {
		return nil, fmt.Errorf("repo: list: %w", err)
	}
	return repos, nil
}

// TouchAnalyzed stamps the repository's last analysis time.
func TouchAnalyzed(db *gorm.DB, id string) error {
	result := db.Model(&models.Repository{}).
		Where("id = ?", id).
		Update("last_analyzed_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("repo: touch analyzed %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("repo: not found %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// ParseOwnerName extracts the owner and repository name from a git remote
// URL. Handles https, ssh and scp-like forms; returns empty strings when
// the URL has no recognizable owner/name path.
func ParseOwnerName(url string) (owner, name string) {
	path := url
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
		// Drop the host segment.
		if j := strings.Index(path, "/"); j >= 0 {
			path = path[j+1:]
		} else {
			return "", ""
		}
	} else if i := strings.Index(path, ":"); i >= 0 && strings.Contains(path[:i], "@") {
		// scp-like: git@host:owner/name.git
		path = path[i+1:]
	}

	path = strings.TrimSuffix(path, "/")
	path = strings.TrimSuffix(path, ".git")

	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return "", ""
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

// isDuplicateEntry reports whether an insert failed on a unique index.
// MySQL reports error 1062; SQLite reports a UNIQUE constraint message.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// generateUniqueID generates an ID and retries once on collision.
func generateUniqueID(db *gorm.DB) (string, error) {
	for range 2 {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&models.Repository{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", fmt.Errorf("repo: check ID uniqueness: %w", err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("repo: failed to generate unique ID after retries")
}
