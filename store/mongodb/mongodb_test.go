package mongodb_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/mongodb"
	"github.com/warp/leave-engine/store/storetest"
)

// =============================================================================
// CONTAINER - one mongod per package run, one database per test
// =============================================================================

func startMongo(t *testing.T) *mongo.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in -short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start mongo container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017/tcp")
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, port.Port())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client
}

func openStore(t *testing.T, client *mongo.Client) *mongodb.Store {
	t.Helper()
	s, err := mongodb.Open(context.Background(), client, "leave_test_"+generic.NewID(), 5*time.Second)
	require.NoError(t, err)
	return s
}

func TestStore_Contract(t *testing.T) {
	client := startMongo(t)
	storetest.Run(t, func(t *testing.T) storetest.Store { return openStore(t, client) })
}

func TestIncrementEntitlement_Concurrent_SingleIncNoLostUpdates(t *testing.T) {
	// GIVEN: One entitlement
	// WHEN: 25 goroutines each reserve 0.25 pending
	// THEN: pending is exactly 6.25

	client := startMongo(t)
	s := openStore(t, client)
	ctx := context.Background()

	ent := &leave.Entitlement{ID: generic.NewID(), EmployeeID: "emp", LeaveTypeID: "annual"}
	require.NoError(t, s.CreateEntitlement(ctx, ent))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementEntitlement(ctx, ent.ID, leave.EntitlementDelta{Pending: decimal.RequireFromString("0.25")}, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetEntitlement(ctx, ent.ID)
	require.NoError(t, err)
	assert.True(t, got.Pending.Equal(decimal.RequireFromString("6.25")), "pending %s", got.Pending)
}

func TestNew_EmptyURI_Error(t *testing.T) {
	_, err := mongodb.New(context.Background(), mongodb.Config{})
	assert.Error(t, err)
}
