package provider

import "fmt"

// Pool holds one HostClient per configured backend.
type Pool struct {
	clients map[string]HostClient
}

func NewPool(clients ...HostClient) *Pool {
	pool := &Pool{
		clients: map[string]HostClient{},
	}
	for _, client := range clients {
		pool.clients[client.GetProviderName()] = client
	}
	return pool
}

func (p *Pool) Get(providerName string) (HostClient, error) {
	client, ok := p.clients[providerName]
	if !ok {
		return nil, fmt.Errorf("no client configured for provider %q", providerName)
	}
	return client, nil
}
