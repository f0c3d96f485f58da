package http

import (
	"net/http"

	"djassa/internal/core"
)

var (
	productMessages = entityMessages{NotFound: "Produit non trouvé", Conflict: "Un produit avec ce nom existe déjà"}
	saleMessages    = entityMessages{NotFound: "Vente non trouvée"}
)

type createProductRequest struct {
	Name           string `json:"name"`
	UnitPrice      int64  `json:"unit_price"`
	Stock          int    `json:"stock"`
	AlertThreshold *int   `json:"alert_threshold"`
	Category       string `json:"category"`
	Barcode        string `json:"barcode"`
}

type createSaleRequest struct {
	ProductID   string           `json:"product_id"`
	Quantity    int              `json:"quantity"`
	PaymentMode core.PaymentMode `json:"payment_mode"`
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	products, err := s.ledger.ListProducts(r.Context(), shop.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(products, newProductView))
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	threshold := core.DefaultAlertLevel
	if req.AlertThreshold != nil {
		threshold = *req.AlertThreshold
	}
	p, err := s.ledger.CreateProduct(r.Context(), core.Product{
		ShopID:         shop.ID,
		Name:           sanitizeInput(req.Name),
		UnitPrice:      req.UnitPrice,
		Stock:          req.Stock,
		AlertThreshold: threshold,
		Category:       sanitizeInput(req.Category),
		Barcode:        sanitizeInput(req.Barcode),
	}, s.auditMeta(r))
	if err != nil {
		writeEntityError(w, r, err, productMessages)
		return
	}
	writeJSON(w, http.StatusCreated, newProductView(p))
}

// handleAdjustStock accepts the adjustment in a JSON or form body, or as a query parameter.
func (s *Server) handleAdjustStock(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	body := NewRequestBodyParser(r)
	if err := body.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	delta, ok, err := intParam(r, body, "adjustment")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !ok {
		BadRequestError("Le paramètre adjustment est requis").Write(w)
		return
	}
	p, err := s.ledger.AdjustStock(r.Context(), shop.ID, r.PathValue("id"), delta, s.auditMeta(r))
	if err != nil {
		writeEntityError(w, r, err, productMessages)
		return
	}
	writeJSON(w, http.StatusOK, newProductView(p))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	if err := s.ledger.DeleteProduct(r.Context(), shop.ID, r.PathValue("id"), s.auditMeta(r)); err != nil {
		writeEntityError(w, r, err, productMessages)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Produit supprimé"})
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	params, err := ParsePageParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	sales, total, err := s.ledger.ListSales(r.Context(), shop.ID, params.Limit, params.Offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(mapSlice(sales, newSaleView), total, params))
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	var req createSaleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sale, err := s.ledger.CreateSale(r.Context(), core.Sale{
		ShopID:      shop.ID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		PaymentMode: req.PaymentMode,
	}, s.auditMeta(r))
	if err != nil {
		// The only lookup a sale does is its product.
		writeEntityError(w, r, err, productMessages)
		return
	}
	writeJSON(w, http.StatusCreated, newSaleView(sale))
}

func (s *Server) handleDeleteSale(w http.ResponseWriter, r *http.Request, shop core.Shop) {
	if err := s.ledger.DeleteSale(r.Context(), shop.ID, r.PathValue("id"), s.auditMeta(r)); err != nil {
		writeEntityError(w, r, err, saleMessages)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vente supprimée"})
}
