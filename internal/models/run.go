package models

import "time"

// Outcome is what the caller of a download run sees.
type Outcome string

const (
	OutcomeSuccess            Outcome = "success"
	OutcomePartial            Outcome = "partial"
	OutcomeNoSession          Outcome = "no_session"
	OutcomeLoginFailed        Outcome = "login_failed"
	OutcomeChallengeExhausted Outcome = "challenge_exhausted"
	OutcomeFailed             Outcome = "failed"
)

// RecordStatus is the per-invoice result of the extraction pipeline.
type RecordStatus string

const (
	RecordAlreadyPresent  RecordStatus = "already_present"
	RecordNewlyDownloaded RecordStatus = "newly_downloaded"
	RecordPartiallyFailed RecordStatus = "partially_failed"
)

// RunMode selects which part of the automation a run executes.
type RunMode string

const (
	// ModeLogin authenticates and stops at the search screen.
	ModeLogin RunMode = "login"
	// ModeFull logs in, submits the search and downloads documents.
	ModeFull RunMode = "full"
	// ModeDownload searches and downloads on an already authenticated session.
	ModeDownload RunMode = "download"
)

// Valid reports whether m is a known mode.
func (m RunMode) Valid() bool {
	switch m {
	case ModeLogin, ModeFull, ModeDownload:
		return true
	default:
		return false
	}
}

// ProcessedInvoice is one invoice handled in a run.
type ProcessedInvoice struct {
	Record     InvoiceRecord  `json:"record"`
	Status     RecordStatus   `json:"status"`
	Downloaded []DocumentType `json:"downloaded,omitempty"`
	Present    []DocumentType `json:"present,omitempty"`
	Failed     []DocumentType `json:"failed,omitempty"`
}

// Failure describes one thing that went wrong in a run without aborting it.
type Failure struct {
	AccessKey    string       `json:"access_key,omitempty"`
	DocumentType DocumentType `json:"document_type,omitempty"`
	Stage        string       `json:"stage"`
	Error        string       `json:"error"`
}

// RunResult is returned by every download run, successful or not.
type RunResult struct {
	RunID      string             `json:"run_id"`
	RUC        string             `json:"ruc"`
	Mode       RunMode            `json:"mode"`
	Outcome    Outcome            `json:"outcome"`
	Processed  []ProcessedInvoice `json:"processed"`
	Failures   []Failure          `json:"failures"`
	Attempts   int                `json:"attempts"`
	UsedSolver bool               `json:"used_solver"`
	Screenshot string             `json:"screenshot,omitempty"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// MissingDocuments counts documents that could not be stored in this run.
func (r *RunResult) MissingDocuments() int {
	n := 0
	for _, p := range r.Processed {
		n += len(p.Failed)
	}
	return n
}
