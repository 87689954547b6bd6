package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-seat-inventory/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/event-seat-inventory/internal/adapters/mongo"
	"github.com/robertarktes/event-seat-inventory/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/event-seat-inventory/internal/adapters/redis"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/floorplan"
	httphandler "github.com/robertarktes/event-seat-inventory/internal/http"
	"github.com/robertarktes/event-seat-inventory/internal/idempotency"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/robertarktes/event-seat-inventory/internal/outbox"
	"github.com/robertarktes/event-seat-inventory/internal/payments"
	"github.com/robertarktes/event-seat-inventory/internal/rateLimit"
	"github.com/robertarktes/event-seat-inventory/internal/regeneration"
	"github.com/robertarktes/event-seat-inventory/internal/reservation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) string {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

type client struct {
	t        *testing.T
	baseURL  string
	tenantID uuid.UUID
}

func (c client) do(method, path string, body interface{}, headers ...string) (*http.Response, []byte) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID.String())
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(c.t, err)
	return resp, out.Bytes()
}

func TestIntegration_RegenerateReserveAndPay(t *testing.T) {
	if testing.Short() {
		t.Skip("needs crdb, mongo, redis and rabbitmq containers")
	}
	ctx := context.Background()

	crdbAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257/tcp")
	mongoAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp"),
	}, "27017/tcp")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379/tcp")
	rabbitAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest"),
	}, "5672/tcp")

	logger := observability.NopLogger()

	pool, err := pgxpool.New(ctx, "postgresql://root@"+crdbAddr+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoAddr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mongoClient.Disconnect(ctx) })
	mongoDB := mongoClient.Database("seatinv_it")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	auditLog := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = redisClient.Close() })
	redisCache := redisadapter.NewCache(redisClient)

	rabbitConn, err := amqp.Dial("amqp://guest:guest@" + rabbitAddr + "/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rabbitConn.Close() })
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	require.NoError(t, err)

	engine := reservation.NewEngine(repo, auditLog, logger, reservation.Options{
		DefaultTTL: 5 * time.Minute,
		MaxTTL:     30 * time.Minute,
		Currency:   "USD",
	})
	coordinator := regeneration.NewCoordinator(repo, catalog, auditLog, floorplan.DefaultDensities(), logger, time.Now)

	tenant, err := httphandler.NewTenantMiddleware("")
	require.NoError(t, err)
	handlers := httphandler.NewHandlers(engine, coordinator, repo, catalog, map[string]httphandler.Pinger{
		"crdb":  repo,
		"mongo": catalog,
		"redis": redisCache,
	})
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, httphandler.RouterConfig{
		Tenant:      tenant,
		RateLimiter: rateLimit.NewRateLimiter(redisCache),
		RatePerMin:  1000,
		Idempotency: idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour),
	}))
	t.Cleanup(srv.Close)

	c := client{t: t, baseURL: srv.URL, tenantID: uuid.New()}

	resp, _ := c.do(http.MethodGet, "/v1/readyz", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Event registration and floor plan.
	eventID := uuid.New()
	resp, body := c.do(http.MethodPost, "/v1/events", map[string]interface{}{
		"id":        eventID,
		"name":      "Integration Night",
		"venue":     "Hall A",
		"starts_at": time.Now().Add(30 * 24 * time.Hour),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	eventPath := "/v1/events/" + eventID.String()
	resp, body = c.do(http.MethodPost, eventPath+"/floor-plan/regenerate", map[string]interface{}{
		"capacity":   20,
		"base_price": 4000,
		"tiers": []map[string]interface{}{
			{"name": "VIP", "percentage": "25", "price_multiplier": "2.5"},
			{"name": "General", "price_multiplier": "1"},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var regen regeneration.Result
	require.NoError(t, json.Unmarshal(body, &regen))
	assert.Equal(t, 20, regen.TotalSeats)
	assert.Equal(t, []domain.TierCount{{Tier: "VIP", Count: 5}, {Tier: "General", Count: 15}}, regen.TierCounts)

	resp, body = c.do(http.MethodGet, eventPath+"/seats?tier=VIP&limit=10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var page struct {
		Seats []domain.Seat `json:"seats"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &page))
	require.Equal(t, 5, page.Total)
	seat := page.Seats[0]
	assert.EqualValues(t, 10000, seat.PriceMinor)

	// Reserve with an idempotency key, then replay it.
	reserve := map[string]interface{}{"seat_id": seat.ID, "holder_ref": "cart-42"}
	resp, body = c.do(http.MethodPost, eventPath+"/holds", reserve, "Idempotency-Key", "it-reserve-key-0001")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var hold domain.Hold
	require.NoError(t, json.Unmarshal(body, &hold))

	resp, replay := c.do(http.MethodPost, eventPath+"/holds", reserve, "Idempotency-Key", "it-reserve-key-0001")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	assert.JSONEq(t, string(body), string(replay))

	resp, _ = c.do(http.MethodPost, eventPath+"/holds", map[string]interface{}{"seat_id": seat.ID, "holder_ref": "cart-7"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	other := client{t: t, baseURL: srv.URL, tenantID: uuid.New()}
	resp, _ = other.do(http.MethodGet, "/v1/holds/"+hold.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Payment result arrives over RabbitMQ.
	consumer, err := rabbit.NewConsumer(rabbitConn, "seatinv.it.payments", rabbit.PaymentRoutingKeys)
	require.NoError(t, err)
	t.Cleanup(func() { _ = consumer.Close() })
	consumeCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	deliveries, err := consumer.Consume(consumeCtx)
	require.NoError(t, err)
	go payments.NewHandler(engine, logger).Run(consumeCtx, deliveries)

	payment, err := json.Marshal(reservation.PaymentResult{
		TenantID:  c.tenantID,
		HoldID:    hold.ID,
		HolderRef: "cart-42",
		Status:    reservation.PaymentSucceeded,
	})
	require.NoError(t, err)
	ch, err := rabbitConn.Channel()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ch.Close() })
	require.NoError(t, ch.PublishWithContext(ctx, rabbit.PaymentsExchange, "payment.succeeded", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payment,
	}))

	require.Eventually(t, func() bool {
		resp, body := c.do(http.MethodGet, "/v1/holds/"+hold.ID.String(), nil)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		var got domain.Hold
		return json.Unmarshal(body, &got) == nil && got.Status == domain.HoldConfirmed
	}, 15*time.Second, 200*time.Millisecond)

	resp, body = c.do(http.MethodGet, eventPath+"/seats?status=CONFIRMED", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Seats, 1)
	assert.Equal(t, seat.ID, page.Seats[0].ID)

	// Outbox relay to the events exchange.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "#", rabbit.EventsExchange, false, nil))
	events, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	n, err := outbox.NewPublisher(repo, rabbitPub, logger).Drain(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 3)

	seen := map[string]bool{}
	timeout := time.After(10 * time.Second)
	for len(seen) < 3 {
		select {
		case d := <-events:
			seen[d.RoutingKey] = true
		case <-timeout:
			t.Fatalf("outbox events not relayed, got %v", seen)
		}
	}
	assert.True(t, seen[crdb.EventSeatsRegenerated])
	assert.True(t, seen[crdb.EventHoldCreated])
	assert.True(t, seen[crdb.EventHoldConfirmed])

	// The seat map cannot be replaced under a confirmed hold without force.
	regenerate := map[string]interface{}{
		"capacity":   10,
		"base_price": 4000,
		"tiers":      []map[string]interface{}{{"name": "General", "price": 4000}},
	}
	resp, _ = c.do(http.MethodPost, eventPath+"/floor-plan/regenerate", regenerate)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	regenerate["force"] = true
	resp, body = c.do(http.MethodPost, eventPath+"/floor-plan/regenerate", regenerate)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &regen))
	assert.Equal(t, 1, regen.InvalidatedHolds)
}
