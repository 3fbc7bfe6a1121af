// Package form holds the product form: a private draft of one record,
// validated on submit and handed back to its owner through a single
// completion event.
package form

import (
	"context"

	"github.com/mixa1334/ProductApp/eventloop"
	"github.com/mixa1334/ProductApp/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var ErrInvalidDraft = errors.New("draft failed validation")

// TypeSource lists the valid product type values.
type TypeSource interface {
	GetProductTypes(ctx context.Context) ([]string, error)
}

type Deps struct {
	Types     TypeSource
	Loop      *eventloop.Loop
	Validator *Validator
	Logger    *zap.Logger
}

// Form must only be used from its loop.
type Form struct {
	action      models.FormAction
	initialData models.Product
	formData    models.Product
	errorMsg    string
	types       []models.TypeOption

	deps       Deps
	onComplete func(models.CompletionEvent)
	onChange   func()
}

// View is the state a renderer binds to.
type View struct {
	Action         models.FormAction   `json:"action"`
	FormData       map[string]string   `json:"formData"`
	ErrorMsg       string              `json:"errorMsg,omitempty"`
	AvailableTypes []models.TypeOption `json:"availableTypes"`
}

// New seeds the draft with a copy of initialData. An empty action means close.
func New(action models.FormAction, initialData models.Product, deps Deps) *Form {
	if action == "" {
		action = models.FormActionClose
	}
	return &Form{
		action:      action,
		initialData: initialData,
		formData:    initialData,
		types:       []models.TypeOption{},
		deps:        deps,
	}
}

// OnComplete sets the receiver of the completion event.
func (f *Form) OnComplete(fn func(models.CompletionEvent)) {
	f.onComplete = fn
}

// OnChange sets a hook run after every visible state change.
func (f *Form) OnChange(fn func()) {
	f.onChange = fn
}

// Init starts loading the type options. A failed load leaves the options empty.
func (f *Form) Init(ctx context.Context) {
	eventloop.Async(f.deps.Loop, func() ([]string, error) {
		return f.deps.Types.GetProductTypes(ctx)
	}, func(types []string, err error) {
		if err != nil {
			f.deps.Logger.Error("Error while loading types", zap.Error(err))
			return
		}
		f.types = models.NewTypeOptions(types)
		f.changed()
	})
}

// HandleInput sets one draft field. Nothing is validated until Complete.
func (f *Form) HandleInput(field, value string) error {
	if err := f.formData.Set(field, value); err != nil {
		return err
	}
	f.changed()
	return nil
}

// Cancel discards the draft and emits a close event with no data.
func (f *Form) Cancel() {
	f.action = models.FormActionClose
	f.clearFormAndError()
	f.dispatch()
}

// Complete emits the draft if it is valid. Otherwise it records the error
// message, keeps the draft, and returns ErrInvalidDraft.
func (f *Form) Complete() error {
	if err := f.deps.Validator.Validate(f.formData); err != nil {
		f.errorMsg = ErrorMessage
		f.changed()
		return errors.Wrap(ErrInvalidDraft, err.Error())
	}
	f.dispatch()
	f.clearFormAndError()
	return nil
}

func (f *Form) View() View {
	return View{
		Action:         f.action,
		FormData:       f.formData.Fields(),
		ErrorMsg:       f.errorMsg,
		AvailableTypes: append([]models.TypeOption{}, f.types...),
	}
}

func (f *Form) Action() models.FormAction { return f.action }

func (f *Form) Draft() models.Product { return f.formData }

func (f *Form) InitialData() models.Product { return f.initialData }

func (f *Form) ErrorMsg() string { return f.errorMsg }

func (f *Form) TypeOptions() []models.TypeOption {
	return append([]models.TypeOption{}, f.types...)
}

func (f *Form) dispatch() {
	if f.onComplete == nil {
		return
	}
	f.onComplete(models.CompletionEvent{Action: f.action, Data: f.formData})
}

func (f *Form) clearFormAndError() {
	f.formData = models.Product{}
	f.errorMsg = ""
	f.changed()
}

func (f *Form) changed() {
	if f.onChange != nil {
		f.onChange()
	}
}
