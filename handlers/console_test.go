package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mixa1334/ProductApp/form"
	"github.com/mixa1334/ProductApp/models"
	"github.com/mixa1334/ProductApp/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type mockRecordService struct {
	mu       sync.Mutex
	products map[string][]models.Product
	searches []string
	created  []models.Product
	edited   []models.Product
	deleted  []string
}

func (m *mockRecordService) GetProducts(ctx context.Context, searchName string) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, searchName)
	return append([]models.Product{}, m.products[searchName]...), nil
}

func (m *mockRecordService) CreateProduct(ctx context.Context, newProduct models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, newProduct)
	return nil
}

func (m *mockRecordService) EditProduct(ctx context.Context, editedProduct models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited = append(m.edited, editedProduct)
	return nil
}

func (m *mockRecordService) DeleteProduct(ctx context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, productID)
	return nil
}

func (m *mockRecordService) GetProductTypes(ctx context.Context) ([]string, error) {
	return []string{"Gadget", "Tool"}, nil
}

type recordedCalls struct {
	searches []string
	created  []models.Product
	edited   []models.Product
	deleted  []string
}

func (m *mockRecordService) snapshot() recordedCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return recordedCalls{
		searches: append([]string(nil), m.searches...),
		created:  append([]models.Product(nil), m.created...),
		edited:   append([]models.Product(nil), m.edited...),
		deleted:  append([]string(nil), m.deleted...),
	}
}

func setupConsoleTest(t *testing.T) (*mockRecordService, *gin.Engine) {
	service := &mockRecordService{products: map[string][]models.Product{
		"": {
			{ID: "p1", Name: "Widget", Amount: "3", Price: "12.5", ProductType: "Tool", ReleaseDate: "2023-05-01"},
			{ID: "p2", Name: "Gizmo", Amount: "1", Price: "4", ProductType: "Gadget", ReleaseDate: "2022-01-10"},
			{ID: "p3", Name: "Doodad", Amount: "10", Price: "1.99", ProductType: "Gadget", ReleaseDate: "2021-07-04"},
		},
		"Widget": {
			{ID: "p1", Name: "Widget", Amount: "3", Price: "12.5", ProductType: "Tool", ReleaseDate: "2023-05-01"},
		},
	}}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	store := session.NewStore(service, form.NewValidator(time.Now), time.Minute, logger)
	t.Cleanup(store.CloseAll)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewConsoleHandler(store, 5*time.Second, logger).Register(router)

	return service, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, sessionResponse) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp sessionResponse
	if w.Code < 300 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func openSession(t *testing.T, router *gin.Engine) sessionResponse {
	w, resp := doJSON(t, router, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotEmpty(t, resp.ID)
	return resp
}

func TestConsoleHandler_OpenAndSearch(t *testing.T) {
	service, router := setupConsoleTest(t)

	opened := openSession(t, router)
	assert.Len(t, opened.View.Products, 3)
	assert.False(t, opened.View.Loading)

	base := "/sessions/" + opened.ID
	w, resp := doJSON(t, router, http.MethodPost, base+"/actions", models.ControlEvent{
		Action: models.TableActionSearch,
		Input:  "Widget",
		Key:    models.KeyEnter,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Widget", resp.View.SearchingParam)
	require.Len(t, resp.View.Products, 1)
	assert.Equal(t, "p1", resp.View.Products[0].ID)

	assert.Equal(t, []string{"", "Widget"}, service.snapshot().searches)

	w, resp = doJSON(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Widget", resp.View.SearchingParam)
}

func TestConsoleHandler_CreateFlow(t *testing.T) {
	service, router := setupConsoleTest(t)
	base := "/sessions/" + openSession(t, router).ID

	w, resp := doJSON(t, router, http.MethodPost, base+"/actions", models.ControlEvent{Action: models.TableActionCreate})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.True(t, resp.View.IsFormVisible)
	require.NotNil(t, resp.View.Form)
	assert.Len(t, resp.View.Form.AvailableTypes, 2)

	today := time.Now().Format(models.ReleaseDateLayout)
	for field, value := range map[string]string{
		models.FieldName:        "Foo",
		models.FieldAmount:      "5",
		models.FieldPrice:       "9.99",
		models.FieldProductType: "Gadget",
		models.FieldReleaseDate: today,
	} {
		w, _ := doJSON(t, router, http.MethodPost, base+"/form/input", inputRequest{Field: field, Value: value})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w, resp = doJSON(t, router, http.MethodPost, base+"/form/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, resp.View.IsFormVisible)
	assert.Nil(t, resp.View.Form)

	snap := service.snapshot()
	require.Len(t, snap.created, 1)
	assert.Equal(t, models.Product{Name: "Foo", Amount: "5", Price: "9.99", ProductType: "Gadget", ReleaseDate: today}, snap.created[0])
	assert.Len(t, snap.searches, 2)
}

func TestConsoleHandler_InvalidSubmit(t *testing.T) {
	service, router := setupConsoleTest(t)
	base := "/sessions/" + openSession(t, router).ID

	doJSON(t, router, http.MethodPost, base+"/actions", models.ControlEvent{Action: models.TableActionCreate})
	doJSON(t, router, http.MethodPost, base+"/form/input", inputRequest{Field: models.FieldPrice, Value: "-1"})

	w, resp := doJSON(t, router, http.MethodPost, base+"/form/complete", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, resp.View.Form)
	assert.Equal(t, form.ErrorMessage, resp.View.Form.ErrorMsg)
	assert.Equal(t, "-1", resp.View.Form.FormData[models.FieldPrice])
	assert.Empty(t, service.snapshot().created)
}

func TestConsoleHandler_EditAndCancel(t *testing.T) {
	service, router := setupConsoleTest(t)
	base := "/sessions/" + openSession(t, router).ID

	w, resp := doJSON(t, router, http.MethodPost, base+"/actions", models.ControlEvent{Action: models.TableActionEdit, ID: "p2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.FormActionEdit, resp.View.FormAction)
	require.NotNil(t, resp.View.Form)
	assert.Equal(t, "Gizmo", resp.View.Form.FormData[models.FieldName])

	w, resp = doJSON(t, router, http.MethodPost, base+"/form/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, resp.View.IsFormVisible)
	assert.Equal(t, models.FormActionCreate, resp.View.FormAction)

	snap := service.snapshot()
	assert.Empty(t, snap.edited)
	assert.Len(t, snap.searches, 1)
}

func TestConsoleHandler_Delete(t *testing.T) {
	service, router := setupConsoleTest(t)
	base := "/sessions/" + openSession(t, router).ID

	w, resp := doJSON(t, router, http.MethodPost, base+"/actions", models.ControlEvent{Action: models.TableActionDelete, ID: "p2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, resp.View.Loading)

	snap := service.snapshot()
	assert.Equal(t, []string{"p2"}, snap.deleted)
	assert.Len(t, snap.searches, 2)
}

func TestConsoleHandler_Errors(t *testing.T) {
	_, router := setupConsoleTest(t)
	base := "/sessions/" + openSession(t, router).ID

	t.Run("Unknown session", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodGet, "/sessions/does-not-exist", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Unknown action", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodPost, base+"/actions", models.ControlEvent{Action: "archive"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Edit of a product not in the list", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodPost, base+"/actions", models.ControlEvent{Action: models.TableActionEdit, ID: "p9"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Form input while the form is closed", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodPost, base+"/form/input", inputRequest{Field: models.FieldName, Value: "x"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Input without a field", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodPost, base+"/form/input", map[string]string{"value": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Close twice", func(t *testing.T) {
		w, _ := doJSON(t, router, http.MethodDelete, base, nil)
		assert.Equal(t, http.StatusOK, w.Code)
		w, _ = doJSON(t, router, http.MethodDelete, base, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
