package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	db "github.com/geosat-ops/sentineldownloader/interface/database"
	"github.com/geosat-ops/sentineldownloader/quicklook"
	"github.com/geosat-ops/sentineldownloader/service/log"
)

func (h *Hub) NewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/aois", h.ListAOIsHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}", h.GetAOIStatusHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}", h.DeleteAOIHandler).Methods("DELETE")
	r.HandleFunc("/aoi/{aoi}/search", h.SearchHandler).Methods("POST")
	r.HandleFunc("/aoi/{aoi}/products", h.ListProductsHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}/products/{status}", h.ListProductsHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}/download", h.DownloadAOIHandler).Methods("PUT")
	r.HandleFunc("/aoi/{aoi}/quicklooks", h.QuicklooksHandler).Methods("GET")
	r.HandleFunc("/aoi/{aoi}/quicklooks", h.FetchQuicklooksHandler).Methods("PUT")
	r.HandleFunc("/product/{product}", h.GetProductHandler).Methods("GET")
	return r
}

// ListAOIsHandler lists the aois of the inventory
func (h *Hub) ListAOIsHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	aois, err := h.Inventory.AOIs(ctx, req.FormValue("pattern"))
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("hub.aois: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(aois)
}

// GetAOIStatusHandler returns the number of products of the aoi in each status
func (h *Hub) GetAOIStatusHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	aoi := mux.Vars(req)["aoi"]
	status, err := h.AOIStatus(ctx, aoi)
	if err != nil {
		if isNotFound(err) {
			w.WriteHeader(404)
			return
		}
		log.Logger(ctx).Sugar().Warnf("hub.status: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(status)
}

// DeleteAOIHandler removes the aoi from the inventory
func (h *Hub) DeleteAOIHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	aoi := mux.Vars(req)["aoi"]
	if err := h.Inventory.DeleteAOI(ctx, aoi); err != nil {
		log.Logger(ctx).Sugar().Warnf("hub.deleteAOI: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	w.WriteHeader(204)
}

// SearchHandler queries the catalog and registers the products found
func (h *Hub) SearchHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	criteria := entities.SearchCriteria{}
	if err := json.NewDecoder(req.Body).Decode(&criteria); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	criteria.AOIID = mux.Vars(req)["aoi"]

	products, err := h.Search(ctx, criteria)
	if err != nil {
		var invalid entities.ErrInvalidCriteria
		if errors.As(err, &invalid) {
			w.WriteHeader(400)
			fmt.Fprintf(w, "%v", invalid)
			return
		}
		log.Logger(ctx).Sugar().Warnf("hub.search: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(products)
}

// ListProductsHandler lists the products of the aoi, optionally filtered by status
func (h *Hub) ListProductsHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	vars := mux.Vars(req)
	page, _ := strconv.Atoi(req.FormValue("page"))
	limit, _ := strconv.Atoi(req.FormValue("limit"))
	products, err := h.Inventory.Products(ctx, vars["aoi"], vars["status"], page, limit)
	if err != nil {
		if isNotFound(err) {
			w.WriteHeader(404)
			return
		}
		log.Logger(ctx).Sugar().Warnf("hub.products: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(products)
}

// GetProductHandler retrieves an inventory entry
func (h *Hub) GetProductHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["product"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	product, err := h.Inventory.Product(ctx, id)
	if err != nil {
		if isNotFound(err) {
			w.WriteHeader(404)
			return
		}
		log.Logger(ctx).Sugar().Warnf("hub.product: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(product)
}

// DownloadAOIHandler downloads the products of the aoi that are not in a terminal state.
// With background=true, the downloads are started and the request returns immediately,
// the progress being available from the aoi status.
func (h *Hub) DownloadAOIHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	aoi := mux.Vars(req)["aoi"]
	if req.FormValue("background") == "true" {
		go func() {
			ctx := context.WithoutCancel(ctx)
			if _, err := h.DownloadAOI(ctx, aoi); err != nil {
				log.Logger(ctx).Sugar().Warnf("hub.download[%s]: %v", aoi, err)
			}
		}()
		w.WriteHeader(202)
		return
	}
	tasks, err := h.DownloadAOI(ctx, aoi)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("hub.download: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	results := make([]taskResult, len(tasks))
	for i, task := range tasks {
		results[i] = taskResult{
			SourceID: task.Product.SourceID,
			Status:   task.Status().String(),
			Message:  task.Message(),
		}
	}
	json.NewEncoder(w).Encode(results)
}

type taskResult struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

// FetchQuicklooksHandler downloads the quicklooks of the aoi into its quicklooks directory
func (h *Hub) FetchQuicklooksHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	aoi := mux.Vars(req)["aoi"]
	files, err := h.FetchQuicklooks(ctx, aoi)
	if err != nil {
		if isNotFound(err) {
			w.WriteHeader(404)
			return
		}
		log.Logger(ctx).Sugar().Warnf("hub.fetchQuicklooks: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	json.NewEncoder(w).Encode(files)
}

// QuicklooksHandler draws the quicklooks of the aoi as a png grid
func (h *Hub) QuicklooksHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	aoi := mux.Vars(req)["aoi"]
	columns, _ := strconv.Atoi(req.FormValue("columns"))

	img, err := h.RenderQuicklooks(ctx, aoi, columns)
	if err != nil {
		if isNotFound(err) {
			w.WriteHeader(404)
			return
		}
		log.Logger(ctx).Sugar().Warnf("hub.quicklooks: %v", err)
		w.WriteHeader(500)
		fmt.Fprintf(w, "%v", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := quicklook.EncodePNG(w, img); err != nil {
		log.Logger(ctx).Sugar().Warnf("hub.quicklooks: %v", err)
	}
}

func isNotFound(err error) bool {
	var notFound db.ErrNotFound
	return errors.As(err, &notFound)
}
