package web

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/homekit-gate/internal/model"
)

var doorTargets = map[string]int{
	"open":   model.DoorOpen,
	"closed": model.DoorClosed,
	"close":  model.DoorClosed,
}

var lockTargets = map[string]int{
	"secured":   model.LockSecured,
	"lock":      model.LockSecured,
	"unsecured": model.LockUnsecured,
	"unlock":    model.LockUnsecured,
}

func (s *Server) characteristic(id model.ID) (CharacteristicJSON, error) {
	v, err := s.store.Read(id)
	if err != nil {
		return CharacteristicJSON{}, err
	}
	def, _ := s.store.Definition(id)
	c := CharacteristicJSON{
		Name:  id.String(),
		Type:  def.Type,
		Perms: permNames(def.Perms),
	}
	// Write-only characteristics (Identify) have no readable value.
	if def.Perms.Has(model.PermRead) {
		c.Value = v.Interface()
	}
	return c, nil
}

func (s *Server) handleListCharacteristics(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	ids := make([]model.ID, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]CharacteristicJSON, 0, len(ids))
	for _, id := range ids {
		c, err := s.characteristic(id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (model.ID, bool) {
	name := chi.URLParam(r, "name")
	id, ok := model.ParseID(name)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown characteristic: "+name)
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetCharacteristic(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	c, err := s.characteristic(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handlePutCharacteristic(w http.ResponseWriter, r *http.Request) {
	id, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req ValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
		return
	}
	v, err := model.FromInterface(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	s.write(w, id, v)
}

func (s *Server) handleDoorTarget(w http.ResponseWriter, r *http.Request) {
	s.handleTarget(w, r, model.TargetDoorState, doorTargets)
}

func (s *Server) handleLockTarget(w http.ResponseWriter, r *http.Request) {
	s.handleTarget(w, r, model.LockTargetState, lockTargets)
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request, id model.ID, names map[string]int) {
	var req TargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON: "+err.Error())
		return
	}
	n, ok := names[strings.ToLower(strings.TrimSpace(req.Target))]
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeInvalid, "unknown target: "+req.Target)
		return
	}
	s.write(w, id, model.Int(n))
}

func (s *Server) write(w http.ResponseWriter, id model.ID, v model.Value) {
	if err := s.store.WriteExternal(id, v); err != nil {
		s.log.Warn("api write rejected", "id", id, "value", v, "err", err)
		writeStoreError(w, err)
		return
	}
	s.log.Info("api write", "id", id, "value", v)

	c, err := s.characteristic(id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, c)
}
