// Package integration exercises Atelier's storage and cache layers
// against real Postgres and Redis containers.
package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/atelier-ai/atelier/internal/cache"
	"github.com/atelier-ai/atelier/internal/domain"
	"github.com/atelier-ai/atelier/internal/storage"
)

// ContainerSetup holds the test container infrastructure.
type ContainerSetup struct {
	PostgresConnStr string
	RedisAddr       string
	cleanup         func()
}

// Cleanup terminates all test containers.
func (s *ContainerSetup) Cleanup() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// SetupContainers starts Postgres and Redis for a test.
func SetupContainers(t *testing.T) *ContainerSetup {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("atelier_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	redisContainer, err := redis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	redisHost, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return &ContainerSetup{
		PostgresConnStr: fmt.Sprintf("postgres://test:test@%s:%s/atelier_test?sslmode=disable",
			pgHost, pgPort.Port()),
		RedisAddr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
		cleanup: func() {
			if err := pgContainer.Terminate(ctx); err != nil {
				t.Logf("Failed to terminate postgres container: %v", err)
			}
			if err := redisContainer.Terminate(ctx); err != nil {
				t.Logf("Failed to terminate redis container: %v", err)
			}
		},
	}
}

func skipWithoutDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if !isDockerAvailable() {
		t.Skip("Docker not available")
	}
}

func TestPostgresRepositories(t *testing.T) {
	skipWithoutDocker(t)

	setup := SetupContainers(t)
	defer setup.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	db, err := storage.Open(ctx, storage.Options{
		Driver:       "postgres",
		PostgresDSN:  setup.PostgresConnStr,
		MaxOpenConns: 5,
	})
	require.NoError(t, err)
	defer db.Close()

	sessions := storage.NewSessionRepository(db)
	pages := storage.NewPageRepository(db)
	messages := storage.NewMessageRepository(db)
	assets := storage.NewAssetRepository(db)

	session := &domain.Session{
		ID:    uuid.New(),
		Title: "integration",
		Mode:  domain.ModeIdle,
	}
	require.NoError(t, sessions.Create(ctx, session))

	page := &domain.Page{
		ID:         uuid.New(),
		SessionID:  session.ID,
		PageNumber: 1,
		MediaType:  "image/jpeg",
		Payload:    []byte{0xFF, 0xD8, 0xFF, 0xD9},
	}
	require.NoError(t, pages.Create(ctx, page))

	require.NoError(t, messages.Append(ctx, &domain.ChatMessage{
		ID:        uuid.New(),
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Text:      "hello",
	}))

	asset := &domain.GeneratedAsset{
		Nodes: []domain.DiagramNode{
			{ID: "core", Title: "Core", Position: domain.Point{X: 100, Y: 100}},
		},
	}
	require.NoError(t, assets.Save(ctx, session.ID, asset))

	loaded, err := assets.Get(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Nodes, 1)
	require.Equal(t, "core", loaded.Nodes[0].ID)

	// Cascade: deleting the session removes everything under it.
	require.NoError(t, sessions.Delete(ctx, session.ID))

	_, err = pages.GetByID(ctx, page.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = assets.Get(ctx, session.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRedisCacheAndEvents(t *testing.T) {
	skipWithoutDocker(t)

	setup := SetupContainers(t)
	defer setup.Cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := cache.NewRedisClient(cache.RedisOptions{Addr: setup.RedisAddr})
	require.NoError(t, err)
	defer client.Close()

	sessionID := uuid.New()
	key := cache.BlueprintKey(sessionID)

	require.NoError(t, client.Set(ctx, key, []byte(`{"boxes":[]}`), time.Minute))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.JSONEq(t, `{"boxes":[]}`, string(got))

	require.NoError(t, client.DeleteByPrefix(ctx, cache.SessionPrefix(sessionID)))
	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, cache.ErrCacheMiss)

	// Events published on the session channel reach a subscriber, the
	// same path the WebSocket hub rides in multi-instance deployments.
	channel := cache.EventChannel(sessionID)
	events, unsubscribe, err := client.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer unsubscribe()

	ev := domain.NewEvent(domain.EventComplete, sessionID)
	require.NoError(t, client.Publish(ctx, channel, ev))

	select {
	case payload := <-events:
		require.Contains(t, string(payload), `"complete"`)
		require.Contains(t, string(payload), sessionID.String())
	case <-time.After(10 * time.Second):
		t.Fatal("event not delivered")
	}
}

// isDockerAvailable checks if Docker is available for testing.
func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.Client().Ping(ctx)
	return err == nil
}
