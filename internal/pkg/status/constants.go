package status

import "fmt"

// File represents the processing state of one discovered file
type File int

const (
	// Discovered - the monitor reported the file
	Discovered File = iota + 1
	// Queued - admitted into a processing wave
	Queued
	// Processing - pipeline is running
	Processing
	// Retrying - failed, waiting for the next attempt
	Retrying
	// Completed - final state, results persisted
	Completed
	// Failed - final state, retries exhausted or disabled
	Failed
	// Skipped - final state, file not eligible for processing
	Skipped
)

var (
	fileName = map[File]string{Discovered: "discovered", Queued: "queued",
		Processing: "processing", Retrying: "retrying", Completed: "completed",
		Failed: "failed", Skipped: "skipped"}
	nameFile = map[string]File{"discovered": Discovered, "queued": Queued,
		"processing": Processing, "retrying": Retrying, "completed": Completed,
		"failed": Failed, "skipped": Skipped}

	fileTransitions = map[File]map[File]bool{
		Discovered: {Queued: true, Skipped: true},
		Queued:     {Processing: true, Skipped: true},
		Processing: {Completed: true, Failed: true, Retrying: true},
		Retrying:   {Processing: true, Failed: true},
		Completed:  {},
		Failed:     {Retrying: true},
		Skipped:    {},
	}
)

func (st File) String() string {
	return fileName[st]
}

// FileFrom returns file status obj from string
func FileFrom(st string) File {
	return nameFile[st]
}

// CanTransition tells if from -> to is a legal file status change
func CanTransition(from, to File) bool {
	return fileTransitions[from][to]
}

// IsFileTerminal tells if no transition leads out of the status
func IsFileTerminal(st File) bool {
	return len(fileTransitions[st]) == 0
}

// EndsAttempt tells if the status closes the current processing attempt
func EndsAttempt(st File) bool {
	return st == Completed || st == Failed || st == Skipped
}

// InvalidTransitionError is returned on an illegal status change request
type InvalidTransitionError struct {
	ID   string
	From File
	To   File
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for '%s'", e.From, e.To, e.ID)
}

// Job represents a batch job state
type Job int

const (
	// JobPending - created, not yet picked up
	JobPending Job = iota + 1
	// JobRunning step
	JobRunning
	// JobCompleted - final state
	JobCompleted
	// JobFailed - final state
	JobFailed
	// JobCancelled - final state
	JobCancelled
)

var (
	jobName = map[Job]string{JobPending: "pending", JobRunning: "running",
		JobCompleted: "completed", JobFailed: "failed", JobCancelled: "cancelled"}
	nameJob = map[string]Job{"pending": JobPending, "running": JobRunning,
		"completed": JobCompleted, "failed": JobFailed, "cancelled": JobCancelled}

	jobTransitions = map[Job]map[Job]bool{
		JobPending: {JobRunning: true, JobCancelled: true, JobFailed: true},
		JobRunning: {JobCompleted: true, JobFailed: true, JobCancelled: true},
	}
)

func (st Job) String() string {
	return jobName[st]
}

// JobFrom returns job status obj from string
func JobFrom(st string) Job {
	return nameJob[st]
}

// CanTransitionJob tells if from -> to is a legal job status change
func CanTransitionJob(from, to Job) bool {
	return jobTransitions[from][to]
}

// IsJobTerminal tells if the job reached its final state
func IsJobTerminal(st Job) bool {
	return st == JobCompleted || st == JobFailed || st == JobCancelled
}
