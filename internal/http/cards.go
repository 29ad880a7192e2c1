package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/YoubetDao/MCPForge-Backend-sub000/internal/service/catalog"
)

func (r *Router) catalogAvailable(w http.ResponseWriter) bool {
	if r.catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not configured")
		return false
	}
	return true
}

func (r *Router) handleCards(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet && req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.catalogAvailable(w) {
		return
	}
	if req.Method == http.MethodPost {
		r.createCard(w, req)
		return
	}
	limit, offset, err := paging(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cards, err := r.catalog.List(req.Context(), limit, offset)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, cards)
}

func (r *Router) createCard(w http.ResponseWriter, req *http.Request) {
	var in catalog.CreateCardInput
	if err := decodeBody(req, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	card, err := r.catalog.Create(req.Context(), in)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (r *Router) handleCardImport(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.catalogAvailable(w) {
		return
	}
	var payload struct {
		GitHub string `json:"github"`
	}
	if err := decodeBody(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	card, err := r.catalog.Import(req.Context(), payload.GitHub)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (r *Router) handleCardSubroutes(w http.ResponseWriter, req *http.Request) {
	if !r.catalogAvailable(w) {
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(req.URL.Path, "/cards/"), "/")
	parts := strings.Split(trimmed, "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 || len(parts) > 2 {
		r.notFound(w)
		return
	}
	if len(parts) == 1 {
		if req.Method != http.MethodGet {
			r.methodNotAllowed(w)
			return
		}
		card, err := r.catalog.Get(req.Context(), id)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
		return
	}
	if parts[1] != "launch" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	r.launchCard(w, req, id)
}

func (r *Router) launchCard(w http.ResponseWriter, req *http.Request, id int64) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for card launch", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	var payload catalog.LaunchInput
	if err := decodeBody(req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload.Owner = info.owner()
	server, err := r.catalog.Launch(req.Context(), id, payload)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	r.respondCreated(w, req, server)
}

func paging(req *http.Request) (int, int, error) {
	query := req.URL.Query()
	limit, offset := 0, 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, errInvalidParam("limit")
		}
		limit = v
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return 0, 0, errInvalidParam("offset")
		}
		offset = v
	}
	return limit, offset, nil
}

type errInvalidParam string

func (e errInvalidParam) Error() string { return "invalid " + string(e) + " parameter" }
