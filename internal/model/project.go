package model

import "time"

// ProjectStatus represents the regulatory status of a project.
type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusInReview  ProjectStatus = "in_review"
	ProjectStatusSubmitted ProjectStatus = "submitted"
)

// DeviceClass represents the FDA device classification.
type DeviceClass string

const (
	DeviceClassI   DeviceClass = "I"
	DeviceClassII  DeviceClass = "II"
	DeviceClassIII DeviceClass = "III"
)

// Project represents a regulatory submission project in the system.
type Project struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	Name        string        `json:"name"`
	DeviceName  string        `json:"deviceName"`
	DeviceClass DeviceClass   `json:"deviceClass"`
	IntendedUse string        `json:"intendedUse,omitempty"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// PredicateDevice represents a cleared 510(k) device record used for
// predicate search.
type PredicateDevice struct {
	KNumber       string    `json:"kNumber"`
	DeviceName    string    `json:"deviceName"`
	Applicant     string    `json:"applicant"`
	ProductCode   string    `json:"productCode"`
	ClearanceDate time.Time `json:"clearanceDate"`
	Summary       string    `json:"summary,omitempty"`
}

// CreateProjectRequest represents a request to create a new project.
type CreateProjectRequest struct {
	Name        string      `json:"name" binding:"required"`
	DeviceName  string      `json:"deviceName" binding:"required"`
	DeviceClass DeviceClass `json:"deviceClass"`
	IntendedUse string      `json:"intendedUse"`
	UserID      string      `json:"-"`
}

// Validate validates the create project request.
func (r *CreateProjectRequest) Validate() error {
	if r.Name == "" {
		return ErrNameRequired
	}
	if r.DeviceName == "" {
		return ErrDeviceRequired
	}
	switch r.DeviceClass {
	case "", DeviceClassI, DeviceClassII, DeviceClassIII:
	default:
		return ErrInvalidDeviceClass
	}
	return nil
}

// UpdateProjectRequest represents a request to update an existing project.
// Nil fields are left unchanged.
type UpdateProjectRequest struct {
	Name        *string        `json:"name"`
	DeviceName  *string        `json:"deviceName"`
	DeviceClass *DeviceClass   `json:"deviceClass"`
	IntendedUse *string        `json:"intendedUse"`
	Status      *ProjectStatus `json:"status"`
}

// Validate validates the update project request.
func (r *UpdateProjectRequest) Validate() error {
	if r.Name != nil && *r.Name == "" {
		return ErrNameRequired
	}
	if r.DeviceName != nil && *r.DeviceName == "" {
		return ErrDeviceRequired
	}
	if r.DeviceClass != nil {
		switch *r.DeviceClass {
		case DeviceClassI, DeviceClassII, DeviceClassIII:
		default:
			return ErrInvalidDeviceClass
		}
	}
	if r.Status != nil {
		switch *r.Status {
		case ProjectStatusDraft, ProjectStatusInReview, ProjectStatusSubmitted:
		default:
			return ErrInvalidStatus
		}
	}
	return nil
}

// Apply applies the non-nil fields of the request to the project and
// bumps UpdatedAt.
func (r *UpdateProjectRequest) Apply(p *Project) {
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.DeviceName != nil {
		p.DeviceName = *r.DeviceName
	}
	if r.DeviceClass != nil {
		p.DeviceClass = *r.DeviceClass
	}
	if r.IntendedUse != nil {
		p.IntendedUse = *r.IntendedUse
	}
	if r.Status != nil {
		p.Status = *r.Status
	}
	p.UpdatedAt = time.Now()
}
