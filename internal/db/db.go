// Package db persists stored GeoJSON files into sqlite for the
// save_all endpoint, and exposes the debug surfaces (tailsql, backup
// download) on the admin mux.
package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/mirrorlake/geodesk/internal/security"
)

type DB struct {
	*sql.DB
}

// New opens (creating if needed) the geodesk database at path and
// ensures the baseline schema exists. Use MigrateUp for versioned
// schema changes beyond the baseline.
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS geo_files (
			file_name         TEXT PRIMARY KEY,
			content           TEXT NOT NULL,
			updated_at        TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// UpsertFile stores one GeoJSON file's content, replacing any previous
// row for the same name.
func (db *DB) UpsertFile(name string, content []byte, now time.Time) error {
	_, err := db.Exec(`
		INSERT INTO geo_files (file_name, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(file_name) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`, name, string(content), now.UTC())
	if err != nil {
		return fmt.Errorf("upsert %s: %w", name, err)
	}
	return nil
}

// FileRecord summarizes one stored row.
type FileRecord struct {
	FileName  string
	Size      int64
	UpdatedAt time.Time
}

func (r *FileRecord) String() string {
	return fmt.Sprintf("%s (%d bytes, updated %s)", r.FileName, r.Size, r.UpdatedAt.Format(time.RFC3339))
}

// Files lists the stored rows, newest first.
func (db *DB) Files() ([]FileRecord, error) {
	rows, err := db.Query(`SELECT file_name, length(content), updated_at FROM geo_files ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []FileRecord
	for rows.Next() {
		var r FileRecord
		if err := rows.Scan(&r.FileName, &r.Size, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// FileContent returns one stored file's content, or sql.ErrNoRows.
func (db *DB) FileContent(name string) ([]byte, error) {
	var content string
	err := db.QueryRow(`SELECT content FROM geo_files WHERE file_name = ?`, name).Scan(&content)
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

// AttachAdminRoutes mounts the debug surfaces: a tailSQL UI for live
// queries and a gzip'd VACUUM INTO download of the database.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://geodesk.db", db.DB, &tailsql.DBOptions{
		Label: "Geodesk DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := fmt.Sprintf("backup-%d.db", time.Now().Unix())
		if err := security.ValidateExportPath(backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Invalid backup path: %v", err), http.StatusInternalServerError)
			return
		}
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
