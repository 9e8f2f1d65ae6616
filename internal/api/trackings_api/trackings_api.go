package trackings_api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/BearBump/TrackBatch/internal/broker/messages"
	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/BearBump/TrackBatch/internal/services/batch"
	"github.com/BearBump/TrackBatch/internal/services/trackings"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
)

// лимит тела запроса
const maxBodyBytes = 1 << 20

type Service interface {
	Track(ctx context.Context, numbers []string) ([]models.TrackingInfo, error)
	Refresh(ctx context.Context) ([]models.TrackingInfo, error)
	AddNumbers(ctx context.Context, numbers []string) ([]string, error)
	RemoveNumber(ctx context.Context, number string) error
	ListNumbers(ctx context.Context) ([]string, error)
	Latest(numbers []string) []messages.TrackingUpdated
}

type TrackingsAPI struct {
	svc Service
}

func New(svc Service) *TrackingsAPI {
	return &TrackingsAPI{svc: svc}
}

type numbersRequest struct {
	Numbers []string `json:"numbers"`
}

type trackResponse struct {
	Results []models.TrackingInfo `json:"results"`
}

type numbersResponse struct {
	Numbers []string `json:"numbers"`
}

type latestResponse struct {
	Updates []messages.TrackingUpdated `json:"updates"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Routes mounts the /v1 endpoints.
func (a *TrackingsAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/track", a.track)
	r.Get("/numbers", a.listNumbers)
	r.Post("/numbers", a.addNumbers)
	r.Delete("/numbers/{number}", a.removeNumber)
	r.Post("/refresh", a.refresh)
	r.Get("/latest", a.latest)
	return r
}

func (a *TrackingsAPI) track(w http.ResponseWriter, r *http.Request) {
	numbers, err := readNumbers(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	res, err := a.svc.Track(r.Context(), numbers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponse{Results: res})
}

func (a *TrackingsAPI) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Refresh(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackResponse{Results: res})
}

func (a *TrackingsAPI) listNumbers(w http.ResponseWriter, r *http.Request) {
	ns, err := a.svc.ListNumbers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, numbersResponse{Numbers: ns})
}

func (a *TrackingsAPI) addNumbers(w http.ResponseWriter, r *http.Request) {
	numbers, err := readNumbers(w, r)
	if err != nil {
		writeBodyError(w, err)
		return
	}
	added, err := a.svc.AddNumbers(r.Context(), numbers)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, numbersResponse{Numbers: added})
}

func (a *TrackingsAPI) removeNumber(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.RemoveNumber(r.Context(), chi.URLParam(r, "number")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *TrackingsAPI) latest(w http.ResponseWriter, r *http.Request) {
	var numbers []string
	for _, v := range r.URL.Query()["number"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				numbers = append(numbers, n)
			}
		}
	}
	writeJSON(w, http.StatusOK, latestResponse{Updates: a.svc.Latest(numbers)})
}

// readNumbers accepts {"numbers":[...]} or a text/plain body with one number per line.
func readNumbers(w http.ResponseWriter, r *http.Request) ([]string, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "text/plain" {
		return batch.SplitInput(string(body)), nil
	}
	var req numbersRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(err, "decode body")
	}
	return req.Numbers, nil
}

// writeBodyError: тело больше лимита даёт 413, прочие ошибки чтения 400.
func writeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	writeError(w, http.StatusBadRequest, err)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, trackings.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, trackings.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		slog.Error("trackings api", "error", err.Error())
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
