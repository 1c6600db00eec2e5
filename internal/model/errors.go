package model

import "errors"

var (
	// ErrNameRequired is returned when a project request is missing the name.
	ErrNameRequired = errors.New("project name is required")

	// ErrDeviceRequired is returned when a project request is missing the device name.
	ErrDeviceRequired = errors.New("device name is required")

	// ErrInvalidDeviceClass is returned for an unrecognized device class.
	ErrInvalidDeviceClass = errors.New("device class must be I, II or III")

	// ErrInvalidStatus is returned for an unrecognized project status.
	ErrInvalidStatus = errors.New("invalid project status")

	// ErrProjectNotFound is returned when a project is not found.
	ErrProjectNotFound = errors.New("project not found")

	// ErrUnauthorized is returned when a user is not authorized.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when access to a resource is forbidden.
	ErrForbidden = errors.New("forbidden")

	// ErrStreamActive is returned when a project already has an agent stream running.
	ErrStreamActive = errors.New("agent stream already active for project")

	// ErrStreamNotFound is returned when no active stream exists for a project.
	ErrStreamNotFound = errors.New("no active stream for project")
)
