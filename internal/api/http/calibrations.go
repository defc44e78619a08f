package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"code.cloudfoundry.org/lager/v3"
	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/leptonsf/internal/calib"
	"github.com/mind-engage/leptonsf/internal/calibio"
	"github.com/mind-engage/leptonsf/internal/rbac"
	"github.com/mind-engage/leptonsf/internal/storage"
)

const maxCalibrationSize = 64 << 20

// MountCalibrations serves calibration files from the blob store and imports
// documents into the calibration database. dbh may be nil.
func MountCalibrations(r chi.Router, bs storage.BlobStore, dbh *sql.DB, logger lager.Logger) {
	logger = logger.Session("calibrations")

	// POST /calibrations/import  { "objects": { name: object } }
	r.With(rbac.Require(rbac.PermCalibrationsImport)).Post("/import", func(w http.ResponseWriter, r *http.Request) {
		if dbh == nil {
			http.Error(w, "no calibration database", http.StatusNotImplemented)
			return
		}
		var doc calibio.Document
		dec := json.NewDecoder(io.LimitReader(r.Body, maxCalibrationSize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		for name, o := range doc.Objects {
			if _, err := o.Table(calib.Nominal, calib.ShiftAdd); err != nil {
				http.Error(w, "object "+name+": "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		if err := calibio.WriteDB(r.Context(), dbh, doc); err != nil {
			logger.Error("failed-to-import", err)
			http.Error(w, "import: "+err.Error(), http.StatusInternalServerError)
			return
		}
		names := make([]string, 0, len(doc.Objects))
		for name := range doc.Objects {
			names = append(names, name)
		}
		logger.Info("imported", lager.Data{"objects": names})
		writeJSON(w, map[string]any{"imported": len(names)})
	})

	// PUT /calibrations/*  raw file body, stored under the key after /calibrations/
	r.With(rbac.Require(rbac.PermCalibrationsWrite)).Put("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimLeft(chi.URLParam(r, "*"), "/")
		if key == "" {
			http.Error(w, "key required", http.StatusBadRequest)
			return
		}
		stored, err := bs.Put(r.Context(), key, io.LimitReader(r.Body, maxCalibrationSize))
		if err != nil {
			logger.Error("failed-to-store", err, lager.Data{"key": key})
			http.Error(w, "store error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		logger.Info("stored", lager.Data{"key": stored})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"key": stored})
	})

	// GET /calibrations/*
	r.With(rbac.Require(rbac.PermCalibrationsRead)).Get("/*", func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimLeft(chi.URLParam(r, "*"), "/")
		rc, err := bs.Get(r.Context(), key)
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "not found: "+key, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "read error: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.Copy(w, rc)
	})
}
