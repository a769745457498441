package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/txsociety/tx-retracer/pkg/core"
	"log/slog"
	"net/http"
	"strconv"
)

const maxHistoryLimit = 100

type Handler struct {
	db storage
}

func NewHandler(db storage) *Handler {
	return &Handler{
		db: db,
	}
}

type NewReplay struct {
	Account string `json:"account"`
	Lt      string `json:"lt"`
	Hash    string `json:"hash"`
}

type NewReplayResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) createReplay(w http.ResponseWriter, r *http.Request) {
	if r.Body == nil {
		writeHttpError(w, http.StatusBadRequest, "empty body")
		return
	}
	var data NewReplay
	err := json.NewDecoder(r.Body).Decode(&data)
	if err != nil {
		writeHttpError(w, http.StatusBadRequest, "invalid replay data: "+err.Error())
		return
	}
	location, err := convertNewReplay(data)
	if err != nil {
		writeHttpError(w, http.StatusBadRequest, "replay data parsing error: "+err.Error())
		return
	}
	job := core.NewJob(location)
	err = h.db.CreateJob(r.Context(), job)
	if err != nil {
		slog.Error("create job", "error", err)
		writeHttpError(w, http.StatusInternalServerError, core.ErrInternalServerError.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	err = json.NewEncoder(w).Encode(NewReplayResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	})
	if err != nil {
		slog.Error("encode job", "error", err)
	}
}

func (h *Handler) getReplay(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseJobID(r.PathValue("id"))
	if err != nil {
		writeHttpError(w, http.StatusBadRequest, "invalid id")
		return
	}
	job, err := h.db.GetJob(r.Context(), id)
	if err != nil && errors.Is(err, core.ErrNotFound) {
		writeHttpError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		slog.Error("get job", "error", err)
		writeHttpError(w, http.StatusInternalServerError, core.ErrInternalServerError.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(core.ConvertJobToPrintable(job))
	if err != nil {
		slog.Error("encode job", "error", err)
	}
}

func (h *Handler) getReplayHistory(w http.ResponseWriter, r *http.Request) {
	var (
		limit int64      = 20
		after core.JobID // empty ID
		err   error
	)
	if limitQuery := r.URL.Query().Get("limit"); len(limitQuery) > 0 {
		limit, err = strconv.ParseInt(limitQuery, 10, 64)
		if err != nil {
			writeHttpError(w, http.StatusBadRequest, "invalid limit: "+err.Error())
			return
		}
		if limit <= 0 || limit > maxHistoryLimit {
			writeHttpError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
	}
	if afterQuery := r.URL.Query().Get("after"); len(afterQuery) > 0 {
		after, err = core.ParseJobID(afterQuery)
		if err != nil {
			writeHttpError(w, http.StatusBadRequest, "invalid job ID: "+err.Error())
			return
		}
	}
	jobs, err := h.db.GetJobs(r.Context(), after, limit)
	if err != nil {
		slog.Error("get jobs", "error", err)
		writeHttpError(w, http.StatusInternalServerError, core.ErrInternalServerError.Error())
		return
	}
	res := struct {
		Replays []core.JobPrintable `json:"replays"`
	}{
		Replays: make([]core.JobPrintable, 0, len(jobs)),
	}
	for _, job := range jobs {
		job.Report = nil // reports are fetched one by one
		res.Replays = append(res.Replays, core.ConvertJobToPrintable(job))
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(res)
	if err != nil {
		slog.Error("encode jobs", "error", err)
	}
}

func (h *Handler) replays(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getReplayHistory(w, r)
	case http.MethodPost:
		h.createReplay(w, r)
	default:
		writeHttpError(w, http.StatusMethodNotAllowed, "only POST or GET method is supported")
		return
	}
}

func RegisterHandlers(mux *http.ServeMux, h *Handler, token string) {
	mux.HandleFunc("/v1/replays", recoverMiddleware(authMiddleware(h.replays, token)))
	mux.HandleFunc("/v1/replays/{id}", recoverMiddleware(authMiddleware(get(h.getReplay), token)))
}

func convertNewReplay(newReplay NewReplay) (core.TxLocation, error) {
	location, err := core.ParseTxLocation(newReplay.Account, newReplay.Lt, newReplay.Hash)
	if err != nil {
		return core.TxLocation{}, err
	}
	if location.Lt == 0 {
		return core.TxLocation{}, errors.New("lt must be positive integer")
	}
	return location, nil
}
