package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/domain"
	"github.com/bangalienterprise/Bangalibusiness-sub000/internal/service"
)

// actingAs returns the username a seller must record under. Admins may name
// another staff member; sellers always act as themselves.
func actingAs(r *http.Request, requested string) string {
	actor, ok := service.ActorFromContext(r.Context())
	if !ok {
		return requested
	}
	if actor.Role == domain.RoleAdmin && strings.TrimSpace(requested) != "" {
		return requested
	}
	return actor.Username
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context(), "")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	product, err := a.service.CreateProduct(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	product, err := a.service.AdjustStock(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context(), "")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customers": customers})
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	customer, err := a.service.CreateCustomer(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"customer": customer})
}

func (a *API) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := a.service.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer": customer})
}

func (a *API) handleCustomerDue(w http.ResponseWriter, r *http.Request) {
	due, err := a.service.CustomerDue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"due": due})
}

// handleRecordSale answers 201 for a new sale and 200 when an idempotency
// key replays an earlier one.
func (a *API) handleRecordSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	req.SellerID = actingAs(r, req.SellerID)

	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	onlyDue := false
	if raw := strings.TrimSpace(query.Get("only_due")); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "only_due must be a boolean", nil)
			return
		}
		onlyDue = parsed
	}

	sales, err := a.service.ListSales(r.Context(), domain.SaleQuery{
		CustomerID: query.Get("customer_id"),
		From:       query.Get("from"),
		To:         query.Get("to"),
		OnlyDue:    onlyDue,
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleGetSale(w http.ResponseWriter, r *http.Request) {
	detail, err := a.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) handleCollectPayment(w http.ResponseWriter, r *http.Request) {
	var req domain.CollectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	req.CollectedBy = actingAs(r, req.CollectedBy)

	resp, err := a.service.CollectPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleListCollections(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	collections, err := a.service.ListCollections(r.Context(), domain.CollectionQuery{
		SaleID: query.Get("sale_id"),
		From:   query.Get("from"),
		To:     query.Get("to"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": collections})
}

func (a *API) handleUpdateCollection(w http.ResponseWriter, r *http.Request) {
	var req domain.CollectionUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	resp, err := a.service.UpdateCollection(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.DeleteCollection(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRecordDamage(w http.ResponseWriter, r *http.Request) {
	var req domain.DamageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	req.ReportedBy = actingAs(r, req.ReportedBy)

	damage, err := a.service.RecordDamage(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"damage": damage})
}

func (a *API) handleListDamages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	damages, err := a.service.ListDamages(r.Context(), domain.DamageQuery{
		From: query.Get("from"),
		To:   query.Get("to"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"damages": damages})
}

func (a *API) handleDueBoard(w http.ResponseWriter, r *http.Request) {
	board, err := a.service.DueBoard(r.Context(), "")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *API) handleCollectionReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.CollectedOnDate(r.Context(), "", r.URL.Query().Get("date"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handlePeriodSummary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	summary, err := a.service.PeriodSummary(r.Context(), "", query.Get("from"), query.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleLifetimeCollection(w http.ResponseWriter, r *http.Request) {
	lifetime, err := a.service.LifetimeCollection(r.Context(), "")
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lifetime)
}
