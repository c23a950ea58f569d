package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/nsafar1/vbmgrid/internal/model"
	"github.com/nsafar1/vbmgrid/internal/toolexec"
)

// Module is the interface that all operation modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Request carries everything an operation needs to transform one subject.
type Request struct {
	Subject model.SubjectID
	Stage   string
	// Inputs maps every declared role to its resolved, existing path.
	Inputs map[string]string
	// Output is the path the operation must write. It is a hidden partial
	// file that is renamed into place only when the operation succeeds.
	Output string
	// Argv is the evaluated command template, nil when the stage has none.
	Argv []string
	Env  map[string]string
	// Params is the value returned by the operation's NewParams, populated
	// from the stage's params block. Nil when the operation takes none.
	Params any
	Tools  toolexec.Runner
}

// OperationFunc performs one transform. Returning nil means the output file
// has been written.
type OperationFunc func(ctx context.Context, req *Request) error

// RegisteredOperation holds the compiled Go parts of an operation.
type RegisteredOperation struct {
	// NewParams returns a pointer to the operation's parameter struct. The
	// struct may implement Validator.
	NewParams func() any
	Fn        OperationFunc
	// Exclusive operations never run concurrently with themselves.
	Exclusive bool
	// RequiresCommand rejects stages that declare no command template.
	RequiresCommand bool
	// FreeParams operations accept any params without decoding them; the
	// values are only visible to the command template.
	FreeParams bool
}

// Validator is implemented by parameter structs with value constraints.
type Validator interface {
	Validate() error
}

// Registry holds the registered operations for a single application instance.
type Registry struct {
	operations map[string]*RegisteredOperation
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{operations: make(map[string]*RegisteredOperation)}
}

// RegisterOperation registers the Go implementation of a named operation.
func (r *Registry) RegisterOperation(name string, op *RegisteredOperation) {
	if _, exists := r.operations[name]; exists {
		panic(fmt.Sprintf("operation with name '%s' already registered", name))
	}
	slog.Debug("Registering operation.", "name", name)
	r.operations[name] = op
}

// Lookup returns the operation registered under name.
func (r *Registry) Lookup(name string) (*RegisteredOperation, bool) {
	op, ok := r.operations[name]
	return op, ok
}

// Names returns the registered operation names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.operations))
	for name := range r.operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
