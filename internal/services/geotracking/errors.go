package geotracking

import "github.com/pkg/errors"

// Таксономия доменных ошибок. API-слой маппит их на HTTP-статусы через errors.Is,
// поэтому оборачивать можно только errors.Wrap/Wrapf.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
	ErrInvalid   = errors.New("invalid argument")
)
