package srvreg

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"github.com/ribon-matchalatte/backend/shop"
	"github.com/shopspring/decimal"
)

// Ledger subject kinds
const (
	SubjectOrder      = "order"
	SubjectIngredient = "ingredient"
)

// RegisterDefaultServices sets up the storefront and admin API
func (sr *ServiceRegistry) RegisterDefaultServices() {
	// Storefront
	sr.RegisterHandler("GET", "/api/products", "", sr.ListActiveProductsHandler)
	sr.RegisterHandler("GET", "/api/products/:id", "", sr.GetActiveProductHandler)
	sr.RegisterHandler("GET", "/api/categories", "", sr.ListCategoriesHandler)
	sr.RegisterHandler("POST", "/api/orders", "", sr.CheckoutHandler)
	sr.RegisterHandler("GET", "/api/orders/track/:phone", "", sr.TrackOrdersHandler)
	sr.RegisterHandler("GET", "/api/products/:id/reviews", "", sr.ListReviewsHandler)
	sr.RegisterHandler("POST", "/api/products/:id/reviews", "", sr.AddReviewHandler)
	sr.RegisterHandler("POST", "/api/contacts", "", sr.SubmitContactHandler)

	// Catalog administration
	sr.RegisterHandler("GET", "/api/admin/products", "", sr.ListProductsHandler)
	sr.RegisterHandler("POST", "/api/admin/products", "", sr.CreateProductHandler)
	sr.RegisterHandler("PUT", "/api/admin/products/:id", "", sr.UpdateProductHandler)
	sr.RegisterHandler("DELETE", "/api/admin/products/:id", "", sr.DeleteProductHandler)
	sr.RegisterHandler("POST", "/api/admin/categories", "", sr.CreateCategoryHandler)
	sr.RegisterHandler("GET", "/api/admin/products/:id/recipe", "", sr.RecipeHandler)
	sr.RegisterHandler("POST", "/api/admin/products/:id/recipe", "", sr.SetRecipeEntryHandler)
	sr.RegisterHandler("DELETE", "/api/admin/products/:id/recipe/:ingredientID", "", sr.RemoveRecipeEntryHandler)

	// Ingredients
	sr.RegisterHandler("GET", "/api/admin/ingredients", "", sr.ListIngredientsHandler)
	sr.RegisterHandler("POST", "/api/admin/ingredients", "", sr.CreateIngredientHandler)
	sr.RegisterHandler("GET", "/api/admin/ingredients/:id", "", sr.GetIngredientHandler)
	sr.RegisterHandler("PUT", "/api/admin/ingredients/:id", "", sr.UpdateIngredientHandler)
	sr.RegisterHandler("DELETE", "/api/admin/ingredients/:id", "", sr.DeleteIngredientHandler)
	sr.RegisterHandler("POST", "/api/admin/ingredients/:id/restock", SubjectIngredient, sr.RestockHandler)
	sr.RegisterHandler("GET", "/api/admin/ingredients/:id/movements", "", sr.MovementsHandler)

	// Orders and reconciliation
	sr.RegisterHandler("GET", "/api/admin/orders", "", sr.ListOrdersHandler)
	sr.RegisterHandler("GET", "/api/admin/orders/:id", "", sr.GetOrderHandler)
	sr.RegisterHandler("PUT", "/api/admin/orders/:id/status", SubjectOrder, sr.UpdateOrderStatusHandler)
	sr.RegisterHandler("POST", "/api/admin/orders/:id/reconcile", SubjectOrder, sr.ReconcileOrderHandler)
	sr.RegisterHandler("POST", "/api/admin/availability/evaluate", "", sr.EvaluateAvailabilityHandler)
	sr.RegisterHandler("GET", "/api/admin/dashboard", "", sr.DashboardHandler)

	// Contact messages
	sr.RegisterHandler("GET", "/api/admin/contacts", "", sr.ListContactsHandler)
	sr.RegisterHandler("PUT", "/api/admin/contacts/:id/status", "", sr.UpdateContactStatusHandler)
}

type messageBody struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// Storefront

func (sr *ServiceRegistry) ListActiveProductsHandler(ctx context.Context, req *Request) (*Response, error) {
	products, err := sr.shop.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, products)
}

// GetActiveProductHandler hides inactive products from the storefront
func (sr *ServiceRegistry) GetActiveProductHandler(ctx context.Context, req *Request) (*Response, error) {
	id := req.Params["id"]
	product, err := sr.shop.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, inventory.NewNotFound("product", id)
	}
	return jsonResponse(http.StatusOK, product)
}

func (sr *ServiceRegistry) ListCategoriesHandler(ctx context.Context, req *Request) (*Response, error) {
	categories, err := sr.shop.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, categories)
}

func (sr *ServiceRegistry) CheckoutHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[shop.CheckoutRequest](req)
	if err != nil {
		return nil, err
	}
	order, err := sr.shop.Checkout(ctx, body)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusCreated, order)
}

func (sr *ServiceRegistry) TrackOrdersHandler(ctx context.Context, req *Request) (*Response, error) {
	orders, err := sr.shop.TrackOrders(ctx, req.Params["phone"])
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, orders)
}

// Catalog administration

func (sr *ServiceRegistry) ListProductsHandler(ctx context.Context, req *Request) (*Response, error) {
	products, err := sr.shop.ListProducts(ctx, false)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, products)
}

func (sr *ServiceRegistry) CreateProductHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[shop.ProductInput](req)
	if err != nil {
		return nil, err
	}
	product, err := sr.shop.CreateProduct(ctx, body)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusCreated, product)
}

func (sr *ServiceRegistry) UpdateProductHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[shop.ProductInput](req)
	if err != nil {
		return nil, err
	}
	product, err := sr.shop.UpdateProduct(ctx, req.Params["id"], body)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, product)
}

func (sr *ServiceRegistry) DeleteProductHandler(ctx context.Context, req *Request) (*Response, error) {
	id := req.Params["id"]
	if err := sr.shop.DeleteProduct(ctx, id); err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, messageBody{Message: "Product deleted", ID: id})
}

type createCategoryBody struct {
	Name string `json:"name"`
}

func (sr *ServiceRegistry) CreateCategoryHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[createCategoryBody](req)
	if err != nil {
		return nil, err
	}
	category, err := sr.shop.CreateCategory(ctx, body.Name)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusCreated, category)
}

func (sr *ServiceRegistry) RecipeHandler(ctx context.Context, req *Request) (*Response, error) {
	recipe, err := sr.shop.Recipe(ctx, req.Params["id"])
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, recipe)
}

func (sr *ServiceRegistry) SetRecipeEntryHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[shop.RecipeEntryInput](req)
	if err != nil {
		return nil, err
	}
	entry, err := sr.shop.SetRecipeEntry(ctx, req.Params["id"], body)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, entry)
}

func (sr *ServiceRegistry) RemoveRecipeEntryHandler(ctx context.Context, req *Request) (*Response, error) {
	if err := sr.shop.RemoveRecipeEntry(ctx, req.Params["id"], req.Params["ingredientID"]); err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, messageBody{Message: "Recipe entry removed"})
}

// Ingredients

func (sr *ServiceRegistry) ListIngredientsHandler(ctx context.Context, req *Request) (*Response, error) {
	ingredients, err := sr.shop.ListIngredients(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, ingredients)
}

func (sr *ServiceRegistry) GetIngredientHandler(ctx context.Context, req *Request) (*Response, error) {
	ingredient, err := sr.shop.Ingredient(ctx, req.Params["id"])
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, ingredient)
}

func (sr *ServiceRegistry) CreateIngredientHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[shop.IngredientInput](req)
	if err != nil {
		return nil, err
	}
	ingredient, err := sr.shop.CreateIngredient(ctx, body)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusCreated, ingredient)
}

func (sr *ServiceRegistry) UpdateIngredientHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[shop.IngredientInput](req)
	if err != nil {
		return nil, err
	}
	ingredient, err := sr.shop.UpdateIngredient(ctx, req.Params["id"], body)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, ingredient)
}

func (sr *ServiceRegistry) DeleteIngredientHandler(ctx context.Context, req *Request) (*Response, error) {
	id := req.Params["id"]
	if err := sr.shop.DeleteIngredient(ctx, id); err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, messageBody{Message: "Ingredient deleted", ID: id})
}

type restockBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func (sr *ServiceRegistry) RestockHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[restockBody](req)
	if err != nil {
		return nil, err
	}
	ingredient, err := sr.shop.Restock(ctx, req.Params["id"], body.Amount)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, ingredient)
}

func (sr *ServiceRegistry) MovementsHandler(ctx context.Context, req *Request) (*Response, error) {
	limit := 50
	if raw := req.Query["limit"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return errorBody(http.StatusBadRequest, KindInvalidInput, "limit must be a positive integer", nil), nil
		}
		limit = n
	}
	movements, err := sr.shop.Movements(ctx, req.Params["id"], limit)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, movements)
}

// Orders and reconciliation

func (sr *ServiceRegistry) ListOrdersHandler(ctx context.Context, req *Request) (*Response, error) {
	orders, err := sr.shop.ListOrders(ctx, models.OrderStatus(req.Query["status"]))
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, orders)
}

func (sr *ServiceRegistry) GetOrderHandler(ctx context.Context, req *Request) (*Response, error) {
	order, err := sr.shop.Order(ctx, req.Params["id"])
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, order)
}

type updateStatusBody struct {
	Status models.OrderStatus `json:"status"`
}

func (sr *ServiceRegistry) UpdateOrderStatusHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[updateStatusBody](req)
	if err != nil {
		return nil, err
	}
	order, err := sr.shop.UpdateStatus(ctx, req.Params["id"], body.Status)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, order)
}

type reconcileResult struct {
	OrderID  string                     `json:"order_id"`
	Deducted inventory.DeductionSummary `json:"deducted"`
}

// ReconcileOrderHandler deducts an order's ingredients without changing its status
func (sr *ServiceRegistry) ReconcileOrderHandler(ctx context.Context, req *Request) (*Response, error) {
	id := req.Params["id"]
	summary, err := sr.inventory.Reconcile(ctx, id)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, reconcileResult{OrderID: id, Deducted: summary})
}

type evaluateResult struct {
	Changes []inventory.AvailabilityChange `json:"changes"`
}

func (sr *ServiceRegistry) EvaluateAvailabilityHandler(ctx context.Context, req *Request) (*Response, error) {
	changes, err := sr.inventory.EvaluateAll(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, evaluateResult{Changes: changes})
}

func (sr *ServiceRegistry) DashboardHandler(ctx context.Context, req *Request) (*Response, error) {
	stats, err := sr.shop.Dashboard(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, stats)
}

// Reviews and contact messages

func (sr *ServiceRegistry) ListReviewsHandler(ctx context.Context, req *Request) (*Response, error) {
	reviews, err := sr.shop.Reviews(ctx, req.Params["id"])
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, reviews)
}

func (sr *ServiceRegistry) AddReviewHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[shop.ReviewInput](req)
	if err != nil {
		return nil, err
	}
	review, err := sr.shop.AddReview(ctx, req.Params["id"], body)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusCreated, review)
}

func (sr *ServiceRegistry) SubmitContactHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[shop.ContactInput](req)
	if err != nil {
		return nil, err
	}
	contact, err := sr.shop.SubmitContact(ctx, body)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusCreated, contact)
}

func (sr *ServiceRegistry) ListContactsHandler(ctx context.Context, req *Request) (*Response, error) {
	contacts, err := sr.shop.ListContacts(ctx, models.ContactStatus(req.Query["status"]))
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, contacts)
}

type contactStatusBody struct {
	Status models.ContactStatus `json:"status"`
}

func (sr *ServiceRegistry) UpdateContactStatusHandler(ctx context.Context, req *Request) (*Response, error) {
	body, err := decodeBody[contactStatusBody](req)
	if err != nil {
		return nil, err
	}
	contact, err := sr.shop.UpdateContactStatus(ctx, req.Params["id"], body.Status)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, contact)
}
