package catalog

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/google/uuid"

	sherrors "github.com/streamhouse/streamhouse/internal/errors"
)

// AthenaAPI is the subset of the Athena client used by AthenaClient.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

// AthenaConfig holds configuration for the Athena catalog client.
type AthenaConfig struct {
	Region string
	// Database is the default database for unqualified names.
	Database string
	// ResultsLocation is the S3 URI where Athena stages query results.
	ResultsLocation string
	// WorkGroup is optional; empty uses the account's primary work group.
	WorkGroup string
	// PollInterval is the delay between status checks.
	PollInterval time.Duration
}

// DefaultPollInterval is used when AthenaConfig.PollInterval is zero.
const DefaultPollInterval = 500 * time.Millisecond

// AthenaClient submits statements to Athena and waits for a terminal state.
type AthenaClient struct {
	api AthenaAPI
	cfg AthenaConfig
}

// NewAthenaClient creates a client using the default AWS credential chain.
func NewAthenaClient(ctx context.Context, cfg AthenaConfig) (*AthenaClient, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAthenaClientWithAPI(athena.NewFromConfig(awsCfg), cfg)
}

// NewAthenaClientWithAPI creates a client around a pre-configured API.
func NewAthenaClientWithAPI(api AthenaAPI, cfg AthenaConfig) (*AthenaClient, error) {
	if cfg.ResultsLocation == "" {
		return nil, sherrors.Configuration("athena: results location is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &AthenaClient{api: api, cfg: cfg}, nil
}

// Execute starts the statement once and polls until it succeeds, fails, is
// cancelled or ctx expires. On expiry the query is stopped.
func (c *AthenaClient) Execute(ctx context.Context, statement string) error {
	input := &athena.StartQueryExecutionInput{
		QueryString:        aws.String(statement),
		ClientRequestToken: aws.String(uuid.New().String()),
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(c.cfg.ResultsLocation),
		},
	}
	if c.cfg.Database != "" {
		input.QueryExecutionContext = &types.QueryExecutionContext{Database: aws.String(c.cfg.Database)}
	}
	if c.cfg.WorkGroup != "" {
		input.WorkGroup = aws.String(c.cfg.WorkGroup)
	}

	out, err := c.api.StartQueryExecution(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return sherrors.CatalogTimeout("athena: start query execution", ctx.Err())
		}
		return sherrors.Catalog("athena: start query execution", err)
	}
	id := aws.ToString(out.QueryExecutionId)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		state, reason, err := c.status(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				c.stop(id)
				return sherrors.CatalogTimeout("athena: query "+id+" did not finish", ctx.Err())
			}
			return sherrors.Catalog("athena: get query execution "+id, err)
		}

		switch state {
		case types.QueryExecutionStateSucceeded:
			return nil
		case types.QueryExecutionStateFailed:
			return sherrors.Catalog(fmt.Sprintf("athena: query %s failed: %s", id, reason), nil).
				WithDetails(map[string]interface{}{"query_execution_id": id})
		case types.QueryExecutionStateCancelled:
			return sherrors.Catalog(fmt.Sprintf("athena: query %s was cancelled", id), nil).
				WithDetails(map[string]interface{}{"query_execution_id": id})
		}

		select {
		case <-ctx.Done():
			c.stop(id)
			return sherrors.CatalogTimeout("athena: query "+id+" did not finish", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *AthenaClient) status(ctx context.Context, id string) (types.QueryExecutionState, string, error) {
	out, err := c.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	})
	if err != nil {
		return "", "", err
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return types.QueryExecutionStateQueued, "", nil
	}
	status := out.QueryExecution.Status
	return status.State, aws.ToString(status.StateChangeReason), nil
}

// stop cancels an abandoned query with its own short deadline.
func (c *AthenaClient) stop(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.api.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(id),
	}); err != nil {
		log.Printf("catalog: failed to stop athena query %s: %v", id, err)
	}
}
