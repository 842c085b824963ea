package engine

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"kioskd/pkg/channel"
)

func (o *Ops) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	machineID := chi.URLParam(r, "machineID")
	if machineID == "" {
		respondError(w, http.StatusBadRequest, errors.New("machine id is required"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	cfg, ok, err := o.engine.configs.Configuration(ctx, machineID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("unknown machine"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"configuration": cfg})
}

// handleUpsertConfiguration imports or replaces a machine configuration.
// kioskctl feeds this endpoint when importing configuration bundles.
func (o *Ops) handleUpsertConfiguration(w http.ResponseWriter, r *http.Request) {
	if o.orm == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("configuration store is read-only"))
		return
	}

	var req channel.MachineConfiguration
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		respondError(w, http.StatusBadRequest, errors.New("configuration id is required"))
		return
	}
	if req.DefaultLanguage == "" {
		req.DefaultLanguage = "en"
	}
	if req.InactivityTimeoutSec <= 0 {
		respondError(w, http.StatusBadRequest, errors.New("inactivity timeout must be positive"))
		return
	}

	ctx, cancel := withTimeout(r.Context())
	defer cancel()

	model := configModelFrom(req)
	orm := o.orm.WithContext(ctx)

	var existing machineConfigModel
	err := orm.First(&existing, "id = ?", req.ID).Error
	switch {
	case err == nil:
		if err := orm.Model(&existing).Updates(map[string]any{
			"default_language":       model.DefaultLanguage,
			"inactivity_timeout_sec": model.InactivityTimeoutSec,
			"login_methods":          model.LoginMethods,
			"touch":                  model.Touch,
			"keyboard":               model.Keyboard,
			"printer":                model.Printer,
			"sound":                  model.Sound,
		}).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	case isNotFound(err):
		if err := orm.Create(&model).Error; err != nil {
			respondError(w, http.StatusInternalServerError, err)
			return
		}
	default:
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"configuration": req})
}
