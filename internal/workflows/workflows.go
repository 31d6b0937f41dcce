package workflows

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"docminer/internal/activities"
	"docminer/internal/models"
	"docminer/internal/pipeline"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryStatus   = "status"
	QueryProgress = "progress"
)

func FileIngestWorkflow(ctx workflow.Context, input FileIngestInput) (FileIngestResult, error) {
	status := FileStatus{
		DocID:       input.DocID,
		Path:        input.Path,
		CurrentStep: "init",
		Status:      string(models.StatusPending),
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (FileStatus, error) {
		return status, nil
	}); err != nil {
		return FileIngestResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	result := FileIngestResult{DocID: input.DocID, Path: input.Path}

	step := func(name string) {
		status.CurrentStep = name
		status.Steps[name] = "processing"
	}
	done := func() { status.Steps[status.CurrentStep] = "done" }

	if result.DocID == 0 {
		step("register")
		var reg activities.RegisterDocumentOutput
		if err := workflow.ExecuteActivity(ctx, "RegisterDocumentActivity", activities.RegisterDocumentInput{Filename: input.Filename, Path: input.Path}).Get(ctx, &reg); err != nil {
			return FileIngestResult{}, err
		}
		result.DocID, status.DocID = reg.DocID, reg.DocID
		done()
	}

	// fail records the failure on the document and ends the workflow normally,
	// so one bad file never fails its parent batch.
	fail := func(err error) (FileIngestResult, error) {
		status.Steps[status.CurrentStep] = "failed"
		status.Status = string(models.StatusFailed)
		status.Error = failureMessage(err)
		result.Status, result.Error = models.StatusFailed, status.Error
		_ = workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
			DocID:  result.DocID,
			Status: models.StatusFailed,
			Error:  status.Error,
		}).Get(ctx, nil)
		return result, nil
	}

	step("mark_processing")
	status.Status = string(models.StatusProcessing)
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{DocID: result.DocID, Status: models.StatusProcessing}).Get(ctx, nil); err != nil {
		return fail(err)
	}
	done()

	step("extract")
	var extracted activities.ExtractFileOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractFileActivity", activities.ExtractFileInput{Path: input.Path}).Get(ctx, &extracted); err != nil {
		return fail(err)
	}
	result.Chunks = len(extracted.Chunks)
	done()

	step("index")
	var indexed activities.IndexChunksOutput
	if err := workflow.ExecuteActivity(ctx, "IndexChunksActivity", activities.IndexChunksInput{DocID: result.DocID, Chunks: extracted.Chunks}).Get(ctx, &indexed); err != nil {
		return fail(err)
	}
	result.Segments = indexed.Segments
	done()

	step("mark_completed")
	summary, _ := json.Marshal(models.IngestSummary{Chunks: result.Chunks, Segments: result.Segments})
	if err := workflow.ExecuteActivity(ctx, "UpdateDocumentStatusActivity", activities.UpdateDocumentStatusInput{
		DocID:         result.DocID,
		Status:        models.StatusCompleted,
		ExtractedData: string(summary),
	}).Get(ctx, nil); err != nil {
		return fail(err)
	}
	done()

	status.CurrentStep = "done"
	status.Status = string(models.StatusCompleted)
	result.Status = models.StatusCompleted
	return result, nil
}

// BatchIngestWorkflow ingests every supported file of a directory as child
// workflows, keeping at most MaxConcurrentChildren running.
func BatchIngestWorkflow(ctx workflow.Context, input BatchIngestInput) (BatchIngestResult, error) {
	progress := BatchIngestProgress{
		PerFile:       map[string]string{},
		ChildWorkflow: map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryProgress, func() (BatchIngestProgress, error) {
		return progress, nil
	}); err != nil {
		return BatchIngestResult{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var listOut activities.ListSourceFilesOutput
	if err := workflow.ExecuteActivity(ctx, "ListSourceFilesActivity", activities.ListSourceFilesInput{InputDir: input.InputDir}).Get(ctx, &listOut); err != nil {
		return BatchIngestResult{}, err
	}
	paths := listOut.Paths
	progress.Total = len(paths)
	for _, p := range paths {
		progress.PerFile[p] = string(models.StatusPending)
	}
	maxChildren := input.MaxConcurrentChildren
	if maxChildren <= 0 {
		maxChildren = pipeline.DefaultWorkers
	}

	runID := workflow.GetInfo(ctx).WorkflowExecution.ID
	results := make([]FileIngestResult, len(paths))
	selector := workflow.NewSelector(ctx)
	running := 0
	for i, path := range paths {
		i, path := i, path
		if running >= maxChildren {
			selector.Select(ctx)
			running--
		}
		workflowID := fmt.Sprintf("%s-file-%d-%s", runID, i, sanitizeID(filepathBase(path)))
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{WorkflowID: workflowID})
		f := workflow.ExecuteChildWorkflow(childCtx, FileIngestWorkflow, FileIngestInput{Path: path, Filename: filepathBase(path)})
		progress.PerFile[path] = string(models.StatusProcessing)
		progress.ChildWorkflow[path] = workflowID
		running++
		selector.AddFuture(f, func(f workflow.Future) {
			var res FileIngestResult
			if err := f.Get(ctx, &res); err != nil {
				res = FileIngestResult{Path: path, Status: models.StatusFailed, Error: failureMessage(err)}
			}
			results[i] = res
			progress.Done++
			if res.Status == models.StatusCompleted {
				progress.Completed++
			} else {
				progress.Failed++
			}
			progress.PerFile[path] = string(res.Status)
		})
	}
	for ; running > 0; running-- {
		selector.Select(ctx)
	}

	out := BatchIngestResult{
		Total:     progress.Total,
		Completed: progress.Completed,
		Failed:    progress.Failed,
		Skipped:   listOut.Skipped,
		Files:     results,
	}
	files := make([]json.RawMessage, 0, len(results))
	for _, r := range results {
		if b, err := json.Marshal(r); err == nil {
			files = append(files, b)
		}
	}
	var report activities.WriteBatchReportOutput
	if err := workflow.ExecuteActivity(ctx, "WriteBatchReportActivity", activities.WriteBatchReportInput{
		RunID: sanitizeID(runID),
		Report: map[string]any{
			"input_dir":       input.InputDir,
			"total":           out.Total,
			"completed":       out.Completed,
			"failed":          out.Failed,
			"skipped":         out.Skipped,
			"per_file_status": progress.PerFile,
			"generated_at":    workflow.Now(ctx),
		},
		Files: files,
	}).Get(ctx, &report); err != nil {
		workflow.GetLogger(ctx).Warn("write batch report failed", "error", err)
	}
	out.ReportPath = report.Path
	return out, nil
}

// DatasetWorkflow runs one extraction. Model failures are retried by Temporal;
// an unparseable answer is a result, not a failure.
func DatasetWorkflow(ctx workflow.Context, input DatasetInput) (activities.ExtractDatasetOutput, error) {
	if strings.TrimSpace(input.Prompt) == "" {
		return activities.ExtractDatasetOutput{}, temporal.NewNonRetryableApplicationError("prompt is required", "InvalidPrompt", nil)
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)
	var out activities.ExtractDatasetOutput
	if err := workflow.ExecuteActivity(ctx, "ExtractDatasetActivity", activities.ExtractDatasetInput{Prompt: input.Prompt}).Get(ctx, &out); err != nil {
		return activities.ExtractDatasetOutput{}, err
	}
	return out, nil
}

// failureMessage unwraps Temporal's activity and child workflow envelopes down
// to the application error message, without the type and retry suffix.
func failureMessage(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		if msg := appErr.Message(); msg != "" {
			return msg
		}
	}
	return err.Error()
}

func filepathBase(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

func sanitizeID(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, ".", "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}
