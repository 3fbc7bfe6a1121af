package models

// FormAction is the intent carried by the form's completion event.
type FormAction string

const (
	FormActionClose  FormAction = "close"
	FormActionCreate FormAction = "create"
	FormActionEdit   FormAction = "edit"
)

// TableAction is the token a table control is tagged with.
type TableAction string

const (
	TableActionCreate TableAction = "create"
	TableActionEdit   TableAction = "edit"
	TableActionDelete TableAction = "delete"
	TableActionSearch TableAction = "search"
	TableActionAll    TableAction = "all"
)

// KeyEnter confirms a search.
const KeyEnter = "Enter"

// CompletionEvent is emitted once by the form when the user resolves it.
type CompletionEvent struct {
	Action FormAction `json:"action"`
	Data   Product    `json:"data"`
}

// ControlEvent describes a table control interaction. Action and ID are the
// control's tags, Value is the payload of menu-like controls that report the
// chosen token instead, Input is the current text of an input control.
type ControlEvent struct {
	Action TableAction `json:"action"`
	ID     string      `json:"id"`
	Value  string      `json:"value"`
	Input  string      `json:"input"`
	Key    string      `json:"key"`
}

// ResolveAction picks the control tag, falling back to the value payload.
func (e ControlEvent) ResolveAction() TableAction {
	if e.Action != "" {
		return e.Action
	}
	return TableAction(e.Value)
}
