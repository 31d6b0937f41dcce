package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.ListSourceFilesActivity)
	w.RegisterActivity(a.RegisterDocumentActivity)
	w.RegisterActivity(a.UpdateDocumentStatusActivity)
	w.RegisterActivity(a.ExtractFileActivity)
	w.RegisterActivity(a.IndexChunksActivity)
	w.RegisterActivity(a.WriteBatchReportActivity)
	w.RegisterActivity(a.ExtractDatasetActivity)
}
