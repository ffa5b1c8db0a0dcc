package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dagolovach/ise-session-manager/internal/ise"
	"github.com/dagolovach/ise-session-manager/internal/snapshot"
)

// handleIndex renders the landing page with the device and MAC search forms.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "index", &viewData{Devices: s.inventory.Targets()})
}

// handleCheckResult runs a collection against the submitted target and
// renders the result table. The snapshot and the NATS publish ride on the
// same request; their failures are logged but never fail the page.
func (s *Server) handleCheckResult(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form data", http.StatusBadRequest)
		return
	}

	target := strings.TrimSpace(r.Form.Get("ip_address"))
	if target == "" {
		target = strings.TrimSpace(r.Form.Get("device"))
	}
	if target == "" {
		s.renderPage(w, "index", &viewData{
			Devices:   s.inventory.Targets(),
			Flash:     "Enter a switch address or pick a device.",
			FlashKind: "err",
		})
		return
	}
	if t, ok := s.inventory.Resolve(target); ok {
		target = t.Host
	}

	result, err := s.collector.Collect(r.Context(), target)
	if err != nil {
		s.logger.Error("Collection failed", "target", target, "error", err)
		s.renderPage(w, "result", &viewData{
			Target:    target,
			Flash:     fmt.Sprintf("Could not collect from %s: %v", target, err),
			FlashKind: "err",
		})
		return
	}

	if err := s.snapshots.Write(result); err != nil {
		s.logger.Error("Failed to persist snapshot", "run_id", result.RunID, "error", err)
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(result); err != nil {
			s.logger.Error("Failed to publish result", "run_id", result.RunID, "error", err)
		}
	}

	s.renderPage(w, "result", &viewData{Target: target, Result: result})
}

// handleMACPage shows the current ISE group for a MAC and the reassignment
// form.
func (s *Server) handleMACPage(w http.ResponseWriter, r *http.Request) {
	s.renderMACPage(w, r, chi.URLParam(r, "mac"))
}

// handleEndpointSearch validates the submitted MAC, then renders the same
// page as /mac/{mac}. The MAC is passed to ISE in the operator's own
// notation; normalization only gates obviously malformed input.
func (s *Server) handleEndpointSearch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form data", http.StatusBadRequest)
		return
	}

	mac := strings.TrimSpace(r.Form.Get("mac"))
	if _, err := ise.NormalizeMAC(mac, "."); err != nil {
		s.renderPage(w, "mac", &viewData{MAC: mac, MACInvalid: true})
		return
	}

	s.renderMACPage(w, r, mac)
}

// renderMACPage resolves the endpoint's current group and lists all groups.
// An endpoint unknown to ISE still gets the form, its group shown as
// Unknown, so it can be registered into a group from here.
func (s *Server) renderMACPage(w http.ResponseWriter, r *http.Request, mac string) {
	data := &viewData{MAC: mac, CurrentGroup: "Unknown"}

	groups, err := s.directory.GetEndpointGroups(r.Context())
	if err != nil {
		s.logger.Error("Failed to list endpoint groups", "error", err)
		data.Flash = "Could not list ISE endpoint groups."
		data.FlashKind = "err"
		s.renderPage(w, "mac", data)
		return
	}
	data.Groups = groups

	groupID, err := s.directory.GetEndpointGroupID(r.Context(), mac)
	switch {
	case err == nil:
		if name, ok := groups[groupID]; ok {
			data.CurrentGroup = name
		}
	case errors.Is(err, ise.ErrEndpointNotFound):
	default:
		s.logger.Error("Failed to look up endpoint group", "mac", mac, "error", err)
		data.Flash = "ISE endpoint lookup failed."
		data.FlashKind = "err"
	}

	s.renderPage(w, "mac", data)
}

// handleUpdateGroup reassigns the endpoint to the submitted group and renders
// the outcome.
func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form data", http.StatusBadRequest)
		return
	}

	mac := chi.URLParam(r, "mac")
	groupID := r.Form.Get("ise_group_id")
	if groupID == "" {
		s.renderPage(w, "update", &viewData{MAC: mac})
		return
	}

	if err := s.directory.UpdateEndpointGroup(r.Context(), mac, groupID); err != nil {
		s.logger.Error("Failed to update endpoint group", "mac", mac, "group_id", groupID, "error", err)
		s.renderPage(w, "update", &viewData{MAC: mac})
		return
	}

	if s.metrics != nil {
		s.metrics.IncrementISEGroupUpdates()
	}
	s.renderPage(w, "update", &viewData{MAC: mac, UpdateOK: true})
}

// handleSnapshot returns the latest collection result as JSON.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	result, err := s.snapshots.Load()
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			writeJSON(w, map[string]any{"error": "no snapshot recorded yet"}, http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to load snapshot", "error", err)
		writeJSON(w, map[string]any{"error": "failed to load snapshot"}, http.StatusInternalServerError)
		return
	}

	writeJSON(w, result, http.StatusOK)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"ise_configured": s.cfg.ISEBaseURL != "",
	}, http.StatusOK)
}
