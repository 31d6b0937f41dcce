package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docminer/internal/activities"
	"docminer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerIngestActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "ListSourceFilesActivity", func(context.Context, activities.ListSourceFilesInput) (activities.ListSourceFilesOutput, error) {
		return activities.ListSourceFilesOutput{}, nil
	})
	registerActivityName(env, "RegisterDocumentActivity", func(context.Context, activities.RegisterDocumentInput) (activities.RegisterDocumentOutput, error) {
		return activities.RegisterDocumentOutput{}, nil
	})
	registerActivityName(env, "UpdateDocumentStatusActivity", func(context.Context, activities.UpdateDocumentStatusInput) error { return nil })
	registerActivityName(env, "ExtractFileActivity", func(context.Context, activities.ExtractFileInput) (activities.ExtractFileOutput, error) {
		return activities.ExtractFileOutput{}, nil
	})
	registerActivityName(env, "IndexChunksActivity", func(context.Context, activities.IndexChunksInput) (activities.IndexChunksOutput, error) {
		return activities.IndexChunksOutput{}, nil
	})
	registerActivityName(env, "WriteBatchReportActivity", func(context.Context, activities.WriteBatchReportInput) (activities.WriteBatchReportOutput, error) {
		return activities.WriteBatchReportOutput{}, nil
	})
}

func oneChunk(source string) activities.ExtractFileOutput {
	return activities.ExtractFileOutput{Chunks: []models.ExtractedChunk{{Content: "row", Metadata: models.Metadata{models.MetaSource: source}}}}
}

func TestFileIngestWorkflowSuccess(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(FileIngestWorkflow)
	registerIngestActivities(env)

	var final activities.UpdateDocumentStatusInput
	env.OnActivity("RegisterDocumentActivity", mock.Anything, activities.RegisterDocumentInput{Filename: "a.csv", Path: "/in/a.csv"}).Return(activities.RegisterDocumentOutput{DocID: 9}, nil)
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.UpdateDocumentStatusInput) error {
		final = in
		return nil
	})
	env.OnActivity("ExtractFileActivity", mock.Anything, activities.ExtractFileInput{Path: "/in/a.csv"}).Return(oneChunk("/in/a.csv"), nil)
	env.OnActivity("IndexChunksActivity", mock.Anything, mock.Anything).Return(activities.IndexChunksOutput{Segments: 2}, nil)

	env.ExecuteWorkflow(FileIngestWorkflow, FileIngestInput{Path: "/in/a.csv", Filename: "a.csv"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out FileIngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, models.StatusCompleted, out.Status)
	assert.Equal(t, int64(9), out.DocID)
	assert.Equal(t, 1, out.Chunks)
	assert.Equal(t, 2, out.Segments)

	assert.Equal(t, models.StatusCompleted, final.Status)
	var summary models.IngestSummary
	require.NoError(t, json.Unmarshal([]byte(final.ExtractedData), &summary))
	assert.Equal(t, models.IngestSummary{Chunks: 1, Segments: 2}, summary)

	val, err := env.QueryWorkflow(QueryStatus)
	require.NoError(t, err)
	var st FileStatus
	require.NoError(t, val.Get(&st))
	assert.Equal(t, "done", st.CurrentStep)
	assert.Equal(t, "done", st.Steps["index"])
}

func TestFileIngestWorkflowUnreadableImageFailsGracefully(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(FileIngestWorkflow)
	registerIngestActivities(env)

	var final activities.UpdateDocumentStatusInput
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.UpdateDocumentStatusInput) error {
		final = in
		return nil
	})
	env.OnActivity("ExtractFileActivity", mock.Anything, mock.Anything).Return(activities.ExtractFileOutput{},
		temporal.NewNonRetryableApplicationError("image processing failed: bad header", activities.ErrTypeImageProcessingFailed, nil)).Once()

	env.ExecuteWorkflow(FileIngestWorkflow, FileIngestInput{DocID: 3, Path: "/in/scan.png"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out FileIngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, models.StatusFailed, out.Status)
	assert.Equal(t, "image processing failed: bad header", out.Error)
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, "image processing failed: bad header", final.Error)
	assert.Equal(t, int64(3), final.DocID)
	env.AssertExpectations(t)
}

func TestBatchIngestWorkflowCountsFailures(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BatchIngestWorkflow)
	env.RegisterWorkflow(FileIngestWorkflow)
	registerIngestActivities(env)

	paths := []string{"/in/a.csv", "/in/b.png", "/in/c.docx", "/in/d.pdf", "/in/e.xlsx", "/in/f.csv", "/in/g.csv"}
	env.OnActivity("ListSourceFilesActivity", mock.Anything, activities.ListSourceFilesInput{InputDir: "/in"}).
		Return(activities.ListSourceFilesOutput{Paths: paths, Skipped: []string{"/in/notes.txt"}}, nil)
	var (
		mu     sync.Mutex
		nextID int64
	)
	env.OnActivity("RegisterDocumentActivity", mock.Anything, mock.Anything).Return(func(context.Context, activities.RegisterDocumentInput) (activities.RegisterDocumentOutput, error) {
		mu.Lock()
		defer mu.Unlock()
		nextID++
		return activities.RegisterDocumentOutput{DocID: nextID}, nil
	})
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("ExtractFileActivity", mock.Anything, mock.Anything).Return(func(_ context.Context, in activities.ExtractFileInput) (activities.ExtractFileOutput, error) {
		if in.Path == "/in/b.png" {
			return activities.ExtractFileOutput{}, temporal.NewNonRetryableApplicationError("image processing failed", activities.ErrTypeImageProcessingFailed, nil)
		}
		return oneChunk(in.Path), nil
	})
	env.OnActivity("IndexChunksActivity", mock.Anything, mock.Anything).Return(activities.IndexChunksOutput{Segments: 1}, nil)
	env.OnActivity("WriteBatchReportActivity", mock.Anything, mock.Anything).Return(activities.WriteBatchReportOutput{Path: "/out/report.json"}, nil)

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchIngestInput{InputDir: "/in"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out BatchIngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, 7, out.Total)
	assert.Equal(t, 6, out.Completed)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, []string{"/in/notes.txt"}, out.Skipped)
	assert.Equal(t, "/out/report.json", out.ReportPath)
	require.Len(t, out.Files, 7)
	for i, f := range out.Files {
		assert.Equal(t, paths[i], f.Path)
	}
	assert.Equal(t, models.StatusFailed, out.Files[1].Status)

	val, err := env.QueryWorkflow(QueryProgress)
	require.NoError(t, err)
	var progress BatchIngestProgress
	require.NoError(t, val.Get(&progress))
	assert.Equal(t, 7, progress.Done)
	assert.Equal(t, "failed", progress.PerFile["/in/b.png"])
}

func TestBatchIngestWorkflowBoundsChildren(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(BatchIngestWorkflow)
	env.RegisterWorkflow(FileIngestWorkflow)
	registerIngestActivities(env)

	paths := make([]string, 8)
	for i := range paths {
		paths[i] = "/in/f" + string(rune('a'+i)) + ".csv"
	}
	env.OnActivity("ListSourceFilesActivity", mock.Anything, mock.Anything).Return(activities.ListSourceFilesOutput{Paths: paths}, nil)
	env.OnActivity("RegisterDocumentActivity", mock.Anything, mock.Anything).Return(activities.RegisterDocumentOutput{DocID: 1}, nil)
	env.OnActivity("UpdateDocumentStatusActivity", mock.Anything, mock.Anything).Return(nil)

	var (
		mu             sync.Mutex
		inFlight, peak int
	)
	env.OnActivity("ExtractFileActivity", mock.Anything, mock.Anything).Return(func(context.Context, activities.ExtractFileInput) (activities.ExtractFileOutput, error) {
		mu.Lock()
		defer mu.Unlock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		return activities.ExtractFileOutput{}, nil
	}).After(time.Second)
	env.OnActivity("IndexChunksActivity", mock.Anything, mock.Anything).Return(func(context.Context, activities.IndexChunksInput) (activities.IndexChunksOutput, error) {
		mu.Lock()
		defer mu.Unlock()
		inFlight--
		return activities.IndexChunksOutput{}, nil
	})
	env.OnActivity("WriteBatchReportActivity", mock.Anything, mock.Anything).Return(activities.WriteBatchReportOutput{}, nil)

	env.ExecuteWorkflow(BatchIngestWorkflow, BatchIngestInput{InputDir: "/in", MaxConcurrentChildren: 3})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out BatchIngestResult
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, 8, out.Completed)
	assert.LessOrEqual(t, peak, 3)
}

func TestDatasetWorkflow(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DatasetWorkflow)
	registerActivityName(env, "ExtractDatasetActivity", func(context.Context, activities.ExtractDatasetInput) (activities.ExtractDatasetOutput, error) {
		return activities.ExtractDatasetOutput{}, nil
	})
	env.OnActivity("ExtractDatasetActivity", mock.Anything, activities.ExtractDatasetInput{Prompt: "totals"}).
		Return(activities.ExtractDatasetOutput{RunID: "r1", Dataset: json.RawMessage(`[{"total":3}]`), Parsed: true}, nil)

	env.ExecuteWorkflow(DatasetWorkflow, DatasetInput{Prompt: "totals"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out activities.ExtractDatasetOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Equal(t, "r1", out.RunID)
	assert.JSONEq(t, `[{"total":3}]`, string(out.Dataset))
}

func TestDatasetWorkflowRejectsEmptyPrompt(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(DatasetWorkflow)
	env.ExecuteWorkflow(DatasetWorkflow, DatasetInput{Prompt: "  "})
	require.True(t, env.IsWorkflowCompleted())

	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "InvalidPrompt", appErr.Type())
}

func TestFailureMessageUnwrapsApplicationError(t *testing.T) {
	err := temporal.NewApplicationError("unsupported file format: .txt", activities.ErrTypeUnsupportedFormat)
	assert.Equal(t, "unsupported file format: .txt", failureMessage(err))
	assert.Equal(t, "unsupported file format: .txt", failureMessage(fmt.Errorf("activity error: %w", err)))
	assert.NotContains(t, failureMessage(err), "retryable")
	assert.Equal(t, "plain", failureMessage(errors.New("plain")))
}
