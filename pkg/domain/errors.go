package domain

import (
	"github.com/pkg/errors"
)

var (
	ErrRestoreInProgress = errors.New("an existing restore is already in progress")
	ErrTaskNotFound      = errors.New("task doesn't exist")
	ErrTaskConflict      = errors.New("task belongs to another unfinished restore")
)
