package soagw

import (
	"context"
	"fmt"
	"reflect"

	"github.com/broady/soagw/soagen/sink"
	"github.com/broady/soagw/soagen/wsdl"
)

// ExportedOperation contains metadata about a registered operation.
type ExportedOperation struct {
	Name       string
	Request    reflect.Type
	Response   reflect.Type
	SOAPAction string
}

// ExportOperations returns the registered operations in name order.
func (g *Gateway) ExportOperations() []ExportedOperation {
	ops := g.registry.Operations()
	out := make([]ExportedOperation, len(ops))
	for i, op := range ops {
		out[i] = ExportedOperation{
			Name:       op.Name,
			Request:    op.Request.Type,
			Response:   op.Response,
			SOAPAction: op.Name,
		}
	}
	return out
}

// Export writes the schema and the description of every operation to s as
// <name>.xsd and <name>.wsdl. Descriptions are built for endpoint and do not
// populate the gateway's description cache.
func (g *Gateway) Export(ctx context.Context, s sink.Sink, endpoint string) error {
	snap := g.registry.Snapshot()
	for _, op := range snap.Operations() {
		schema, err := snap.Schema(op.Name)
		if err != nil {
			return err
		}
		if err := sink.WriteDocument(ctx, s, op.Name+".xsd", schema); err != nil {
			return err
		}
		desc, err := wsdl.Description(snap.Namespace(), snap.Types(), op, endpoint)
		if err != nil {
			return fmt.Errorf("export %s: %w", op.Name, err)
		}
		if err := sink.WriteDocument(ctx, s, op.Name+".wsdl", desc); err != nil {
			return err
		}
	}
	return nil
}
