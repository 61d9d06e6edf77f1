package api

import "context"

// Transcription is the result of one audio file transcription
type Transcription struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"durationSeconds"`
	WordCount       int     `json:"wordCount"`
}

// Transcriber provides audio transcription
type Transcriber interface {
	Transcribe(ctx context.Context, localPath string) (*Transcription, error)
}
