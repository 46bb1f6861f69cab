package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	sherrors "github.com/streamhouse/streamhouse/internal/errors"
)

// fakeAthena walks each query through a scripted list of states.
type fakeAthena struct {
	mu       sync.Mutex
	states   []types.QueryExecutionState
	reason   string
	startErr error
	polls    int
	started  []*athena.StartQueryExecutionInput
	stopped  []string
}

func (f *fakeAthena) StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, in)
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("q-1")}, nil
}

func (f *fakeAthena) GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := types.QueryExecutionStateRunning
	if f.polls < len(f.states) {
		state = f.states[f.polls]
	}
	f.polls++
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &types.QueryExecution{
			QueryExecutionId: in.QueryExecutionId,
			Status: &types.QueryExecutionStatus{
				State:             state,
				StateChangeReason: aws.String(f.reason),
			},
		},
	}, nil
}

func (f *fakeAthena) StopQueryExecution(ctx context.Context, in *athena.StopQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, aws.ToString(in.QueryExecutionId))
	return &athena.StopQueryExecutionOutput{}, nil
}

func newTestAthena(t *testing.T, fake *fakeAthena) *AthenaClient {
	t.Helper()
	c, err := NewAthenaClientWithAPI(fake, AthenaConfig{
		Database:        "analytics",
		ResultsLocation: "s3://results/athena/",
		WorkGroup:       "streamhouse",
		PollInterval:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return c
}

func TestAthenaClient_Succeeds(t *testing.T) {
	fake := &fakeAthena{states: []types.QueryExecutionState{
		types.QueryExecutionStateQueued,
		types.QueryExecutionStateRunning,
		types.QueryExecutionStateSucceeded,
	}}
	c := newTestAthena(t, fake)

	if err := c.Execute(context.Background(), "ALTER TABLE analytics.clicks ADD IF NOT EXISTS ..."); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(fake.started) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(fake.started))
	}
	in := fake.started[0]
	if aws.ToString(in.ResultConfiguration.OutputLocation) != "s3://results/athena/" {
		t.Errorf("unexpected output location %q", aws.ToString(in.ResultConfiguration.OutputLocation))
	}
	if aws.ToString(in.WorkGroup) != "streamhouse" {
		t.Errorf("unexpected work group %q", aws.ToString(in.WorkGroup))
	}
	if aws.ToString(in.QueryExecutionContext.Database) != "analytics" {
		t.Errorf("unexpected database %q", aws.ToString(in.QueryExecutionContext.Database))
	}
	if len(aws.ToString(in.ClientRequestToken)) < 32 {
		t.Error("client request token must be at least 32 characters")
	}
	if fake.polls != 3 {
		t.Errorf("expected 3 polls, got %d", fake.polls)
	}
}

func TestAthenaClient_Failed(t *testing.T) {
	fake := &fakeAthena{
		states: []types.QueryExecutionState{types.QueryExecutionStateFailed},
		reason: "AccessDeniedException",
	}
	c := newTestAthena(t, fake)

	err := c.Execute(context.Background(), "stmt")
	if !errors.Is(err, sherrors.ErrCatalog) {
		t.Fatalf("expected catalog error, got %v", err)
	}
	if errors.Is(err, sherrors.ErrCatalogTimeout) {
		t.Error("failure should not be reported as timeout")
	}
	if len(fake.started) != 1 {
		t.Errorf("failed statements must not be resubmitted, got %d submissions", len(fake.started))
	}
}

func TestAthenaClient_Cancelled(t *testing.T) {
	fake := &fakeAthena{states: []types.QueryExecutionState{types.QueryExecutionStateCancelled}}
	c := newTestAthena(t, fake)

	if err := c.Execute(context.Background(), "stmt"); !errors.Is(err, sherrors.ErrCatalog) {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func TestAthenaClient_TimeoutStopsQuery(t *testing.T) {
	fake := &fakeAthena{} // runs forever
	c := newTestAthena(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Execute(ctx, "stmt")
	if !errors.Is(err, sherrors.ErrCatalogTimeout) {
		t.Fatalf("expected catalog timeout, got %v", err)
	}
	if !sherrors.IsRetryable(err) {
		t.Error("timeouts should be retryable by the trigger")
	}
	if len(fake.stopped) != 1 || fake.stopped[0] != "q-1" {
		t.Errorf("expected abandoned query to be stopped, got %v", fake.stopped)
	}
}

func TestAthenaClient_StartError(t *testing.T) {
	fake := &fakeAthena{startErr: errors.New("throttled")}
	c := newTestAthena(t, fake)

	if err := c.Execute(context.Background(), "stmt"); !errors.Is(err, sherrors.ErrCatalog) {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func TestNewAthenaClient_RequiresResultsLocation(t *testing.T) {
	_, err := NewAthenaClientWithAPI(&fakeAthena{}, AthenaConfig{})
	if !errors.Is(err, sherrors.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}
