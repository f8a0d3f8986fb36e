package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velohost/velohub/catalog"
	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/tests"
)

func TestSelectProvider_ExplicitProviderWins(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, &catalog.StaticCatalog{
		Items: map[string]*catalog.Item{
			"RackVM Special": {ID: "p1", Name: "RackVM Special", Tags: map[string]string{"provider": constants.PROVIDER_SKYVIRT}},
		},
	})

	// explicit tag on the order beats both the catalog tag and the
	// name heuristic
	provider := ordersSvc.SelectProvider(context.TODO(), &db.Order{
		ProductName: "RackVM Special",
		Provider:    constants.PROVIDER_MANUAL,
	})
	assert.Equal(t, constants.PROVIDER_MANUAL, provider)
}

func TestSelectProvider_CatalogTagBeatsHeuristics(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, &catalog.StaticCatalog{
		Items: map[string]*catalog.Item{
			"RackVM Special": {ID: "p1", Name: "RackVM Special", Tags: map[string]string{"provider": constants.PROVIDER_SKYVIRT}},
		},
	})

	provider := ordersSvc.SelectProvider(context.TODO(), &db.Order{ProductName: "RackVM Special"})
	assert.Equal(t, constants.PROVIDER_SKYVIRT, provider)
}

func TestSelectProvider_DescriptorHeuristics(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, nil)

	tests := []struct {
		name     string
		order    db.Order
		expected string
	}{
		{"name mentions skyvirt", db.Order{ProductName: "SkyVirt 8GB NVMe"}, constants.PROVIDER_SKYVIRT},
		{"lightning glyph", db.Order{ProductName: "⚡ 4GB Turbo"}, constants.PROVIDER_SKYVIRT},
		{"name mentions rack", db.Order{ProductName: "Rack Series 2GB"}, constants.PROVIDER_RACKVM},
		{"skyvirt subnet", db.Order{ProductName: "Legacy 1GB", IPAddress: "103.15.7.7"}, constants.PROVIDER_SKYVIRT},
		{"rackvm subnet", db.Order{ProductName: "Legacy 1GB", IPAddress: "45.129.0.3"}, constants.PROVIDER_RACKVM},
		{"no signal falls back to manual", db.Order{ProductName: "Budget 1GB"}, constants.PROVIDER_MANUAL},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ordersSvc.SelectProvider(context.TODO(), &tc.order))
		})
	}
}

func TestInferOS(t *testing.T) {
	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, nil)

	assert.Equal(t, "windows-2022", ordersSvc.InferOS(&db.Order{ProductName: "Windows RDP 8GB"}))
	assert.Equal(t, "debian-12", ordersSvc.InferOS(&db.Order{ProductName: "Debian Box"}))
	assert.Equal(t, "ubuntu-22.04", ordersSvc.InferOS(&db.Order{ProductName: "Plain 4GB"}))
	// an explicit OS on the order is never overridden
	assert.Equal(t, "centos-9", ordersSvc.InferOS(&db.Order{ProductName: "Windows RDP", OS: "centos-9"}))
}
