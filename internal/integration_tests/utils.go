//go:build integration

package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"creative-backend/internal/core"
	"creative-backend/internal/database"
	"creative-backend/internal/evaluator"
	"creative-backend/pkg/api"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

// scriptedEvaluator stands in for the llm backed evaluator. Roles named in
// fail return FAIL, every other role passes with score.
type scriptedEvaluator struct {
	score float64
	fail  map[string]bool
}

func (e *scriptedEvaluator) Evaluate(ctx context.Context, role core.RoleDefinition, req evaluator.Request) (api.RoleResult, error) {
	if e.fail[role.ShortName] {
		return api.RoleResult{Verdict: api.VerdictFail, Confidence: 0.85, Justification: role.ShortName + " rejected the work"}, nil
	}
	score := e.score
	return api.RoleResult{Verdict: api.VerdictPass, Score: &score, Confidence: 0.85, Justification: role.ShortName + " approved the work"}, nil
}

func validInput(brand string) api.EvaluationInput {
	return api.EvaluationInput{
		BrandName:         brand,
		Category:          "Beverages",
		CampaignObjective: api.ObjectiveMixed,
		PrimaryChannels:   []string{"TV", "Social"},
		TargetAudience:    "Young professionals in cities who buy drinks on the go several times a week",
		BrandStatus:       api.BrandStatusMarketLeader,
		MarketContext: &api.MarketContext{
			MarketMaturity:      api.MaturityMature,
			CategoryClutter:     api.LevelHigh,
			PurchaseFrequency:   api.LevelHigh,
			DecisionInvolvement: api.LevelLow,
		},
		Creative: &api.CreativeAsset{
			Description: strings.Repeat("A commuter shares a cold drink with a stranger on a stalled train and they both laugh. ", 3),
		},
	}
}

func createDB(t *testing.T) *gorm.DB {
	uri := setupPostgresContainer(t, context.Background())
	db, err := database.NewDatabase(uri)
	require.NoError(t, err)

	return db
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) string {
	rabbitmqContainer, err := rabbitmq.Run(ctx, "rabbitmq:3.11-management")
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	return connStr
}

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func httpRequest(router http.Handler, method, endpoint string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		requestBody, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(requestBody)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return fmt.Errorf("expected status code 200, got %d: %v", rr.Code, rr.Body.String())
	}

	if dest != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}
