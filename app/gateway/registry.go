package gateway

import "errors"

var ErrGatewayNotFound = errors.New("gateway not found")

type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	items := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		items[g.ID()] = g
	}
	return &Registry{gateways: items}
}

func (r *Registry) Get(id string) (Gateway, error) {
	g, ok := r.gateways[id]
	if !ok {
		return nil, ErrGatewayNotFound
	}
	return g, nil
}

// IDs returns the registered gateway identifiers.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.gateways))
	for id := range r.gateways {
		ids = append(ids, id)
	}
	return ids
}
