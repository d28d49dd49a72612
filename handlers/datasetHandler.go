package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"

	"github.com/gorilla/mux"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/samber/lo"

	"threatexplorer/models"
)

type datasetStore interface {
	DescribeSchema() (*models.SchemaInfo, error)
	Columns() []string
}

// DatasetHandler exposes dataset introspection for the frontend: the table
// schema and a fuzzy lookup over the dataset's column names.
type DatasetHandler struct {
	store datasetStore
}

func NewDatasetHandler(store datasetStore) *DatasetHandler {
	return &DatasetHandler{store: store}
}

func (h *DatasetHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/dataset/info", h.GetInfo).Methods("GET")
	router.HandleFunc("/dataset/columns", h.SearchColumns).Methods("GET")
}

func (h *DatasetHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.DescribeSchema()
	if err != nil {
		log.Printf("[ERROR] Failed to describe dataset schema: %v", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSONResponse(w, http.StatusOK, info)
}

func (h *DatasetHandler) SearchColumns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	columns := h.store.Columns()

	matches := columns
	if query != "" {
		ranks := fuzzy.RankFindNormalizedFold(query, columns)
		sort.Sort(ranks)
		matches = lo.Map(ranks, func(rank fuzzy.Rank, _ int) string {
			return rank.Target
		})
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"query":   query,
		"columns": matches,
	})
}

func (h *DatasetHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *DatasetHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
