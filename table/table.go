// Package table holds the product table: the list of records loaded from the
// record service, the search term, and the embedded product form.
package table

import (
	"context"

	"github.com/mixa1334/ProductApp/eventloop"
	"github.com/mixa1334/ProductApp/form"
	"github.com/mixa1334/ProductApp/models"
	"github.com/mixa1334/ProductApp/remote"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrUnknownAction    = errors.New("unknown table action")
	ErrProductNotLoaded = errors.New("product is not in the loaded list")
	ErrFormClosed       = errors.New("form is not open")
)

// Table must only be used from its loop. Every remote call it issues runs off
// the loop and reports back onto it.
type Table struct {
	searchingParam string
	products       []models.Product
	inFlight       int
	isFormVisible  bool
	productToEdit  models.Product
	formAction     models.FormAction
	form           *form.Form

	// reloadSeq identifies the newest list request; older results are dropped.
	reloadSeq uint64

	ctx       context.Context
	service   remote.RecordService
	loop      *eventloop.Loop
	validator *form.Validator
	logger    *zap.Logger

	listeners    map[int]func(View)
	nextListener int
}

// View is the state a renderer binds to.
type View struct {
	SearchingParam string            `json:"searchingParam"`
	Products       []models.Product  `json:"products"`
	Loading        bool              `json:"loading"`
	IsFormVisible  bool              `json:"isFormVisible"`
	ProductToEdit  models.Product    `json:"productToEdit"`
	FormAction     models.FormAction `json:"formAction"`
	Form           *form.View        `json:"form,omitempty"`
}

// New builds an unmounted table. ctx bounds every remote call it will issue.
func New(
	ctx context.Context,
	service remote.RecordService,
	loop *eventloop.Loop,
	validator *form.Validator,
	logger *zap.Logger,
) *Table {
	return &Table{
		products:   []models.Product{},
		formAction: models.FormActionCreate,
		ctx:        ctx,
		service:    service,
		loop:       loop,
		validator:  validator,
		logger:     logger,
		listeners:  make(map[int]func(View)),
	}
}

// Mount loads the full list.
func (t *Table) Mount() {
	t.reloadProducts()
}

// Subscribe registers fn to receive a view after every state change.
func (t *Table) Subscribe(fn func(View)) (unsubscribe func()) {
	id := t.nextListener
	t.nextListener++
	t.listeners[id] = fn
	return func() { delete(t.listeners, id) }
}

// HandleTableAction dispatches one control interaction.
func (t *Table) HandleTableAction(e models.ControlEvent) error {
	switch action := e.ResolveAction(); action {
	case models.TableActionEdit:
		return t.openEditForm(e.ID)
	case models.TableActionCreate:
		t.openCreateForm()
	case models.TableActionDelete:
		t.deleteProductByID(e.ID)
	case models.TableActionAll:
		t.searchByName("")
	case models.TableActionSearch:
		if e.Key == models.KeyEnter {
			t.searchByName(e.Input)
		}
	default:
		return errors.Wrapf(ErrUnknownAction, "%q", action)
	}
	return nil
}

// HandleFormEvent receives the form's completion event. Create and edit are
// sent to the record service; every event closes the form.
func (t *Table) HandleFormEvent(e models.CompletionEvent) {
	switch e.Action {
	case models.FormActionCreate:
		t.createProduct(e.Data)
	case models.FormActionEdit:
		t.editProduct(e.Data)
	}
	t.closeForm()
}

// Form returns the open form.
func (t *Table) Form() (*form.Form, error) {
	if t.form == nil {
		return nil, ErrFormClosed
	}
	return t.form, nil
}

func (t *Table) View() View {
	view := View{
		SearchingParam: t.searchingParam,
		Products:       append([]models.Product{}, t.products...),
		Loading:        t.Loading(),
		IsFormVisible:  t.isFormVisible,
		ProductToEdit:  t.productToEdit,
		FormAction:     t.formAction,
	}
	if t.form != nil {
		formView := t.form.View()
		view.Form = &formView
	}
	return view
}

// Loading reports whether any remote call issued by the table is still pending.
func (t *Table) Loading() bool {
	return t.inFlight > 0
}

func (t *Table) searchByName(param string) {
	t.searchingParam = param
	t.reloadProducts()
}

func (t *Table) reloadProducts() {
	t.reloadSeq++
	seq := t.reloadSeq
	searchName := t.searchingParam

	perform(t, remote.OpGetProducts,
		func(ctx context.Context) ([]models.Product, error) {
			return t.service.GetProducts(ctx, searchName)
		},
		func(products []models.Product) {
			if seq != t.reloadSeq {
				t.logger.Debug("Dropping superseded product list",
					zap.String("search", searchName),
					zap.Uint64("request", seq),
					zap.Uint64("latest", t.reloadSeq),
				)
				return
			}
			t.products = products
		},
		nil,
	)
}

func (t *Table) deleteProductByID(id string) {
	perform(t, remote.OpDeleteProduct,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, t.service.DeleteProduct(ctx, id)
		},
		nil,
		t.reloadProducts,
	)
}

func (t *Table) createProduct(data models.Product) {
	perform(t, remote.OpCreateProduct,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, t.service.CreateProduct(ctx, data)
		},
		nil,
		t.reloadProducts,
	)
}

func (t *Table) editProduct(data models.Product) {
	perform(t, remote.OpEditProduct,
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, t.service.EditProduct(ctx, data)
		},
		nil,
		t.reloadProducts,
	)
}

// perform wraps a remote call: loading is raised before the call, onSuccess
// sees the result, errors are logged and swallowed, and onSettled runs after
// either outcome, before loading is lowered again.
func perform[T any](
	t *Table,
	operation string,
	call func(ctx context.Context) (T, error),
	onSuccess func(T),
	onSettled func(),
) {
	t.inFlight++
	t.changed()

	ctx := t.ctx
	eventloop.Async(t.loop, func() (T, error) {
		return call(ctx)
	}, func(result T, err error) {
		if err != nil {
			t.logger.Error("Error while performing operation",
				zap.String("operation", operation),
				zap.Error(err),
			)
		} else if onSuccess != nil {
			onSuccess(result)
		}
		if onSettled != nil {
			onSettled()
		}
		t.inFlight--
		t.changed()
	})
}

func (t *Table) openCreateForm() {
	t.formAction = models.FormActionCreate
	t.productToEdit = models.Product{}
	t.showForm()
}

func (t *Table) openEditForm(id string) error {
	product, ok := models.FindByID(t.products, id)
	if !ok {
		t.logger.Warn("Cannot edit a product that is not loaded", zap.String("product_id", id))
		return errors.Wrapf(ErrProductNotLoaded, "%q", id)
	}
	t.formAction = models.FormActionEdit
	t.productToEdit = product
	t.showForm()
	return nil
}

// showForm mounts a fresh form seeded with the edit target, replacing any
// form that is already open.
func (t *Table) showForm() {
	t.detachForm()

	f := form.New(t.formAction, t.productToEdit, form.Deps{
		Types:     t.service,
		Loop:      t.loop,
		Validator: t.validator,
		Logger:    t.logger,
	})
	f.OnComplete(t.HandleFormEvent)
	f.OnChange(t.changed)
	f.Init(t.ctx)

	t.form = f
	t.isFormVisible = true
	t.changed()
}

func (t *Table) closeForm() {
	t.detachForm()
	t.isFormVisible = false
	t.productToEdit = models.Product{}
	t.formAction = models.FormActionCreate
	t.changed()
}

func (t *Table) detachForm() {
	if t.form == nil {
		return
	}
	t.form.OnComplete(nil)
	t.form.OnChange(nil)
	t.form = nil
}

func (t *Table) changed() {
	if len(t.listeners) == 0 {
		return
	}
	view := t.View()
	for _, fn := range t.listeners {
		fn(view)
	}
}
