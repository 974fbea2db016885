package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrSessionNotFound  = goerr.New("session not found")
	ErrSessionEnded     = goerr.New("session already ended")
	ErrTransientService = goerr.New("service temporarily unavailable")
	ErrEmptyGeneration  = goerr.New("no text generated")
	ErrEmptyEmbedding   = goerr.New("no embedding returned")
)
